package prompt

import (
	"fmt"
	"strings"
	"time"
)

// Vars carries the values substituted into a template. Substitution is a
// literal first-occurrence replacement of the {input} and {question} tokens;
// templates are written so each token appears at most once.
type Vars struct {
	Input    string
	Question string
}

type Registry struct {
	templates map[string]string
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		templates: map[string]string{
			TemplateSQLGeneration: sqlGenerationTemplate,
			TemplateReflection:    reflectionTemplate,
			TemplateChart:         chartTemplate,
			TemplateText:          textTemplate,
		},
		now: time.Now,
	}
}

// Render substitutes vars into the identified template. An unknown template
// id is a programming error and panics.
func (r *Registry) Render(templateID string, vars Vars) string {
	template, ok := r.templates[templateID]
	if !ok {
		panic(fmt.Sprintf("prompt: unknown template %q", templateID))
	}

	// {input} is replaced before {question} so a question containing the
	// literal token text cannot hijack the input substitution.
	rendered := strings.Replace(template, "{date}", r.now().Format("2006-01-02"), 1)
	rendered = strings.Replace(rendered, "{input}", vars.Input, 1)
	rendered = strings.Replace(rendered, "{question}", vars.Question, 1)
	return rendered
}
