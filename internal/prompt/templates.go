package prompt

// Template identifiers for the four fixed pipeline prompts.
const (
	TemplateSQLGeneration = "sql_generation"
	TemplateReflection    = "sql_reflection"
	TemplateChart         = "chart_reshape"
	TemplateText          = "text_summary"
)

// schemaContext describes the fixed analytics schema. It is compiled in and
// embedded into the generation prompt verbatim.
const schemaContext = `Table partner:
  partner_id   TEXT   -- unique partner identifier
  name         TEXT   -- legal partner name
  segment      TEXT   -- one of RETAIL, BROKER, DIRECT
  address_id   TEXT   -- references address.address_id
  created_at   TIMESTAMP

Table address:
  address_id   TEXT   -- unique address identifier
  street       TEXT
  city         TEXT
  province     TEXT   -- two-letter province code
  postal_code  TEXT
  country      TEXT

Table application:
  application_id TEXT      -- unique application identifier
  partner_id     TEXT      -- references partner.partner_id
  amount         NUMERIC   -- requested amount in dollars
  status         TEXT      -- one of SUBMITTED, APPROVED, DECLINED, WITHDRAWN
  submitted_at   TIMESTAMP`

const sqlGenerationTemplate = `You are an expert SQL analyst. Today's date is {date}.

You write a single PostgreSQL-compatible SELECT statement that answers a
business question against the schema below. Give every output column a short
lowercase alias. Return ONLY the SQL statement. No markdown, no explanation.

Schema:
` + schemaContext + `

Question:
{question}`

const reflectionTemplate = `You review a candidate SQL statement before it runs against a production
database. Classify it and respond with a single JSON object of this exact
shape and nothing else:

{"status": "VALID" | "INVALID", "response": "<sql or message>"}

Rules:
- If the statement would alter data in any way (insert, update, delete, drop,
  create, grant, truncate, alter), set status to INVALID and put a short
  human-readable explanation in response.
- If the statement is a read-only query with a syntax mistake, fix the mistake
  and return the corrected statement in response with status VALID.
- If the statement is a correct read-only query, return it unchanged in
  response with status VALID.

Example input:
SELECT name, segment FROM partner WHER segment = 'RETAIL'

Example output:
{"status": "VALID", "response": "SELECT name, segment FROM partner WHERE segment = 'RETAIL'"}

Statement to review:
{input}`

const chartTemplate = `You reshape tabular query results into a bar chart specification. Respond
with a single JSON object of this exact shape and nothing else:

{"status": "VALID" | "INVALID", "response": {"title": string, "categories": [string], "minValue": number, "maxValue": number, "data": [{"topic": string, "<category>": number}]} | null}

Rules:
- Every data entry has a "topic" label plus one numeric value per category.
- A topic label longer than 10 characters must be truncated to 10 characters.
- minValue and maxValue are optional bounds covering all values.
- If the rows cannot be charted (no numeric field, or too many distinct
  topics), set status to INVALID and response to null.

Example input:
[{"province":"ON","avg_amount":1250.5},{"province":"BC","avg_amount":980.25}]

Example output:
{"status": "VALID", "response": {"title": "Average amount by province", "categories": ["avg_amount"], "minValue": 0, "maxValue": 1300, "data": [{"topic": "ON", "avg_amount": 1250.5}, {"topic": "BC", "avg_amount": 980.25}]}}

Example input:
[{"name":"Acme Partners Incorporated","count":4},{"name":"Northern Lending Group","count":2}]

Example output:
{"status": "VALID", "response": {"title": "Applications by partner", "categories": ["count"], "minValue": 0, "maxValue": 5, "data": [{"topic": "Acme Partn", "count": 4}, {"topic": "Northern L", "count": 2}]}}

Rows to reshape:
{input}`

const textTemplate = `You summarize tabular query results as a short natural-language answer.
Today's date is {date}.

Rules:
- Answer the question directly in one or two sentences.
- Phrase counts and aggregates as answers. Do not enumerate raw rows.
- Do not mention SQL, tables, or that the data came from a query.

Example question: How many applications were approved?
Example rows: [{"approved_count":42}]
Example answer: There are 42 approved applications.

Example question: Which province has the most partners?
Example rows: [{"province":"ON","partner_count":18}]
Example answer: Ontario has the most partners, with 18 in total.

Question:
{question}

Rows:
{input}`
