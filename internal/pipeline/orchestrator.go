package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tablechat/tablechat/internal/chat"
	"github.com/tablechat/tablechat/internal/completion"
	"github.com/tablechat/tablechat/internal/observability"
	"github.com/tablechat/tablechat/internal/prompt"
	"github.com/tablechat/tablechat/internal/warehouse"
)

// Status is the orchestrator's position in the state machine. Transitions are
// one-directional; the only branch-back is the text-to-table fallback, which
// re-enters at StatusCreatingTable.
type Status string

const (
	StatusGenerating    Status = "GENERATING"
	StatusReflecting    Status = "REFLECTING"
	StatusExecuting     Status = "EXECUTING"
	StatusCreatingTable Status = "CREATING_TABLE"
	StatusCreatingChart Status = "CREATING_CHART"
	StatusCreatingText  Status = "CREATING_TEXT"
	StatusDone          Status = "DONE"
	StatusError         Status = "ERROR"
)

// StatusFunc receives each status transition of a run. Callers that do not
// care pass nil.
type StatusFunc func(Status)

type RunRequest struct {
	ConversationID string
	Question       string
	Kind           chat.Kind
	Model          string
}

// RunResult is the explicit state a run leaves behind. Replies lists the
// persisted non-user messages in creation order.
type RunResult struct {
	Status      Status
	UserMessage chat.Message
	Replies     []chat.Message
}

const (
	noticeVerdictParse  = "I wasn't able to validate the generated SQL. Please try rephrasing your question."
	noticeGeneric       = "Something went wrong while answering your question. Please try again."
	noticeChartFailure  = "I couldn't create a chart from these results."
	noticeTextFallback  = "I couldn't summarize the results, falling back to a table."
	tableMessageContent = "Here are the results."
	chartMessageContent = "Here is your chart."
)

type Orchestrator struct {
	registry    *prompt.Registry
	gateway     completion.Gateway
	engine      warehouse.Engine
	repo        chat.Repository
	logger      *slog.Logger
	strictGuard bool
	locks       *runLocks
}

func NewOrchestrator(registry *prompt.Registry, gateway completion.Gateway, engine warehouse.Engine, repo chat.Repository, logger *slog.Logger, strictGuard bool) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		gateway:     gateway,
		engine:      engine,
		repo:        repo,
		logger:      logger,
		strictGuard: strictGuard,
		locks:       newRunLocks(),
	}
}

// Run executes one generate, reflect, execute, present chain for a question.
// The user message is persisted before any stage runs and is never rolled
// back. Stage failures terminate the run with a persisted assistant notice
// and StatusError; Run itself returns an error only when the run could not
// start at all.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, notify StatusFunc) (RunResult, error) {
	if notify == nil {
		notify = func(Status) {}
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return RunResult{}, fmt.Errorf("question is required")
	}
	if !req.Kind.Valid() {
		return RunResult{}, fmt.Errorf("unknown presentation kind %q", req.Kind)
	}
	if _, err := o.repo.GetConversation(ctx, req.ConversationID); err != nil {
		return RunResult{}, fmt.Errorf("load conversation: %w", err)
	}

	if !o.locks.acquire(req.ConversationID) {
		return RunResult{}, ErrRunInFlight
	}
	defer o.locks.release(req.ConversationID)

	started := time.Now()
	result, err := o.run(ctx, req, question, notify)
	outcome := "done"
	if err != nil || result.Status == StatusError {
		outcome = "error"
	}
	observability.ObservePipelineRun(string(req.Kind), outcome, time.Since(started))
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, req RunRequest, question string, notify StatusFunc) (RunResult, error) {
	userMessage, err := o.repo.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: req.ConversationID,
		Role:           chat.RoleUser,
		Content:        question,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("persist user message: %w", err)
	}
	result := RunResult{UserMessage: userMessage}

	o.logger.Info("pipeline run started",
		"conversation_id", req.ConversationID,
		"kind", string(req.Kind),
		"model", req.Model,
	)

	// Generation. The model is free to emit anything here; safety is
	// deferred entirely to reflection.
	notify(StatusGenerating)
	candidate, err := o.generate(ctx, question, req.Model)
	if err != nil {
		o.logger.Warn("sql generation failed", "conversation_id", req.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeGeneric), nil
	}

	// Reflection is the sole gate before execution.
	notify(StatusReflecting)
	verdict, err := o.reflect(ctx, candidate, req.Model)
	if err != nil {
		var parseErr *VerdictParseError
		if errors.As(err, &parseErr) {
			observability.IncrementVerdictParseFailure()
			o.logger.Warn("reflection verdict unparsable", "conversation_id", req.ConversationID, "error", err)
			return o.fail(ctx, result, notify, noticeVerdictParse), nil
		}
		o.logger.Warn("reflection failed", "conversation_id", req.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeGeneric), nil
	}
	if verdict.Status == VerdictInvalid {
		observability.IncrementReflectionRejection()
		content := verdict.Response
		if strings.TrimSpace(content) == "" {
			content = noticeGeneric
		}
		return o.fail(ctx, result, notify, content), nil
	}
	if o.strictGuard {
		if keyword := GuardViolation(verdict.Response); keyword != "" {
			observability.IncrementReflectionRejection()
			o.logger.Warn("strict guard rejected statement", "conversation_id", req.ConversationID, "keyword", keyword)
			return o.fail(ctx, result, notify, fmt.Sprintf("The generated statement was rejected because it contains %s.", keyword)), nil
		}
	}
	approvedSQL := verdict.Response

	notify(StatusExecuting)
	executed, err := o.execute(ctx, approvedSQL)
	if err != nil {
		o.logger.Warn("statement execution failed", "conversation_id", req.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeGeneric), nil
	}
	observability.ObserveWarehouseRows(len(executed.Rows))

	switch req.Kind {
	case chat.KindTable:
		notify(StatusCreatingTable)
		return o.finishTable(ctx, result, notify, executed.Rows, approvedSQL)
	case chat.KindChart:
		notify(StatusCreatingChart)
		return o.finishChart(ctx, result, notify, executed.Rows, approvedSQL, req.Model)
	case chat.KindText:
		notify(StatusCreatingText)
		return o.finishText(ctx, result, notify, question, executed.Rows, approvedSQL, req.Model)
	default:
		return o.fail(ctx, result, notify, noticeGeneric), nil
	}
}

func (o *Orchestrator) generate(ctx context.Context, question, model string) (string, error) {
	started := time.Now()
	defer func() { observability.ObserveStage("generating", time.Since(started)) }()

	rendered := o.registry.Render(prompt.TemplateSQLGeneration, prompt.Vars{Question: question})
	raw, err := o.gateway.Complete(ctx, rendered, completion.RoleUser, model)
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	candidate := stripMarkdownFence(raw)
	if candidate == "" {
		return "", fmt.Errorf("generate sql: %w", completion.ErrEmptyCompletion)
	}
	return candidate, nil
}

func (o *Orchestrator) reflect(ctx context.Context, candidate, model string) (Verdict, error) {
	started := time.Now()
	defer func() { observability.ObserveStage("reflecting", time.Since(started)) }()

	rendered := o.registry.Render(prompt.TemplateReflection, prompt.Vars{Input: candidate})
	raw, err := o.gateway.Complete(ctx, rendered, completion.RoleUser, model)
	if err != nil {
		return Verdict{}, fmt.Errorf("reflect on sql: %w", err)
	}
	return ParseVerdict(raw)
}

func (o *Orchestrator) execute(ctx context.Context, approvedSQL string) (warehouse.Result, error) {
	started := time.Now()
	defer func() { observability.ObserveStage("executing", time.Since(started)) }()
	return o.engine.Execute(ctx, approvedSQL)
}

func (o *Orchestrator) finishTable(ctx context.Context, result RunResult, notify StatusFunc, rows []warehouse.Row, approvedSQL string) (RunResult, error) {
	message, err := o.createTableMessage(ctx, result, rows, approvedSQL)
	if err != nil {
		o.logger.Warn("table message failed", "conversation_id", result.UserMessage.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeGeneric), nil
	}
	result.Replies = append(result.Replies, message)
	result.Status = StatusDone
	notify(StatusDone)
	return result, nil
}

func (o *Orchestrator) finishChart(ctx context.Context, result RunResult, notify StatusFunc, rows []warehouse.Row, approvedSQL, model string) (RunResult, error) {
	started := time.Now()
	spec, err := o.createChartSpec(ctx, rows, model)
	observability.ObserveStage("creating_chart", time.Since(started))
	if err != nil {
		// INVALID and malformed both end the run with the friendly
		// chart notice; no CHART message is written.
		o.logger.Warn("chart reshape failed", "conversation_id", result.UserMessage.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeChartFailure), nil
	}

	payload, err := MarshalChartSpec(spec)
	if err != nil {
		o.logger.Warn("chart spec marshal failed", "conversation_id", result.UserMessage.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeChartFailure), nil
	}
	message, err := o.repo.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: result.UserMessage.ConversationID,
		Role:           chat.RoleChart,
		Kind:           chat.KindPtr(chat.KindChart),
		Content:        chartMessageContent,
		Results:        payload,
		SQL:            chat.StringPtr(approvedSQL),
		ResponseToID:   chat.StringPtr(result.UserMessage.ID),
	})
	if err != nil {
		o.logger.Warn("chart message failed", "conversation_id", result.UserMessage.ConversationID, "error", err)
		return o.fail(ctx, result, notify, noticeChartFailure), nil
	}
	result.Replies = append(result.Replies, message)
	result.Status = StatusDone
	notify(StatusDone)
	return result, nil
}

func (o *Orchestrator) finishText(ctx context.Context, result RunResult, notify StatusFunc, question string, rows []warehouse.Row, approvedSQL, model string) (RunResult, error) {
	started := time.Now()
	message, err := o.createTextMessage(ctx, result, question, rows, approvedSQL, model)
	observability.ObserveStage("creating_text", time.Since(started))
	if err == nil {
		result.Replies = append(result.Replies, message)
		result.Status = StatusDone
		notify(StatusDone)
		return result, nil
	}

	// Text is the one stage with a structured fallback: announce it, then
	// build a table from the rows already fetched. No second store query.
	observability.IncrementTextFallback()
	o.logger.Warn("text summary failed, falling back to table", "conversation_id", result.UserMessage.ConversationID, "error", err)

	notice, noticeErr := o.persistNotice(ctx, result, noticeTextFallback)
	if noticeErr != nil {
		o.logger.Error("fallback notice failed", "conversation_id", result.UserMessage.ConversationID, "error", noticeErr)
		result.Status = StatusError
		notify(StatusError)
		return result, nil
	}
	result.Replies = append(result.Replies, notice)

	notify(StatusCreatingTable)
	return o.finishTable(ctx, result, notify, rows, approvedSQL)
}

func (o *Orchestrator) createTableMessage(ctx context.Context, result RunResult, rows []warehouse.Row, approvedSQL string) (chat.Message, error) {
	started := time.Now()
	defer func() { observability.ObserveStage("creating_table", time.Since(started)) }()

	payload, err := MarshalRows(rows)
	if err != nil {
		return chat.Message{}, err
	}
	return o.repo.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: result.UserMessage.ConversationID,
		Role:           chat.RoleAssistant,
		Kind:           chat.KindPtr(chat.KindTable),
		Content:        tableMessageContent,
		Results:        payload,
		SQL:            chat.StringPtr(approvedSQL),
		ResponseToID:   chat.StringPtr(result.UserMessage.ID),
	})
}

func (o *Orchestrator) createChartSpec(ctx context.Context, rows []warehouse.Row, model string) (ChartSpec, error) {
	payload, err := MarshalRows(rows)
	if err != nil {
		return ChartSpec{}, err
	}
	rendered := o.registry.Render(prompt.TemplateChart, prompt.Vars{Input: string(payload)})
	raw, err := o.gateway.Complete(ctx, rendered, completion.RoleUser, model)
	if err != nil {
		return ChartSpec{}, fmt.Errorf("reshape rows to chart: %w", err)
	}
	return ParseChartSpec(raw)
}

func (o *Orchestrator) createTextMessage(ctx context.Context, result RunResult, question string, rows []warehouse.Row, approvedSQL, model string) (chat.Message, error) {
	payload, err := MarshalRows(rows)
	if err != nil {
		return chat.Message{}, err
	}
	rendered := o.registry.Render(prompt.TemplateText, prompt.Vars{
		Question: question,
		Input:    string(payload),
	})
	prose, err := o.gateway.Complete(ctx, rendered, completion.RoleUser, model)
	if err != nil {
		return chat.Message{}, fmt.Errorf("summarize rows: %w", err)
	}
	return o.repo.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: result.UserMessage.ConversationID,
		Role:           chat.RoleAssistant,
		Kind:           chat.KindPtr(chat.KindText),
		Content:        prose,
		Results:        payload,
		SQL:            chat.StringPtr(approvedSQL),
		ResponseToID:   chat.StringPtr(result.UserMessage.ID),
	})
}

// fail converts a stage failure into a persisted assistant notice and a
// terminal error status. The run never crashes the conversation.
func (o *Orchestrator) fail(ctx context.Context, result RunResult, notify StatusFunc, content string) RunResult {
	notice, err := o.persistNotice(ctx, result, content)
	if err != nil {
		o.logger.Error("error notice failed", "conversation_id", result.UserMessage.ConversationID, "error", err)
	} else {
		result.Replies = append(result.Replies, notice)
	}
	result.Status = StatusError
	notify(StatusError)
	return result
}

func (o *Orchestrator) persistNotice(ctx context.Context, result RunResult, content string) (chat.Message, error) {
	return o.repo.CreateMessage(ctx, chat.CreateMessageInput{
		ConversationID: result.UserMessage.ConversationID,
		Role:           chat.RoleAssistant,
		Content:        content,
		ResponseToID:   chat.StringPtr(result.UserMessage.ID),
	})
}

// MarshalChartSpec serializes a chart spec for storage in a message's
// results payload.
func MarshalChartSpec(spec ChartSpec) ([]byte, error) {
	encoded, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("marshal chart spec: %w", err)
	}
	return encoded, nil
}
