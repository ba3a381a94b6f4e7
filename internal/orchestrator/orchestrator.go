// Package orchestrator is the request/response façade: it ties
// sessions, providers, and tool execution together into a single
// processRequest pipeline with typed errors and lifecycle events.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/halcyon-ai/halcyon/internal/audit"
	"github.com/halcyon-ai/halcyon/internal/observability"
	"github.com/halcyon-ai/halcyon/internal/sessions"
	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Request timeout bounds.
const (
	DefaultRequestTimeout = 30 * time.Second
	MinRequestTimeout     = time.Second
	MaxRequestTimeout     = 300 * time.Second
)

// RequestOptions tune a single request.
type RequestOptions struct {
	Timeout      time.Duration `json:"timeout,omitempty"`
	MaxTokens    int           `json:"max_tokens,omitempty"`
	Temperature  float64       `json:"temperature,omitempty"`
	EnabledTools []string      `json:"enabled_tools,omitempty"`
}

// Request is one conversational request against an existing session.
type Request struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	Options   RequestOptions `json:"options,omitempty"`
}

// Response is the assembled outcome of a request. Citations is
// reserved and currently always empty.
type Response struct {
	Content   string                  `json:"content"`
	ToolCalls []models.ToolCallResult `json:"tool_calls,omitempty"`
	Citations []string                `json:"citations"`
	Usage     Usage                   `json:"usage"`
	Duration  time.Duration           `json:"duration"`
	Provider  string                  `json:"provider"`
	Model     string                  `json:"model"`
	Metadata  map[string]any          `json:"metadata,omitempty"`
}

// StreamEvent is one increment of a streaming response, tagged so
// consumers can demultiplex by session.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	Provider  string `json:"provider"`
	Content   string `json:"content,omitempty"`
	Done      bool   `json:"done"`
}

// Config wires the orchestrator's collaborators. Events, Audit,
// Metrics, and Tracer may be nil.
type Config struct {
	Sessions *sessions.Manager
	Registry *tools.Registry
	Executor *tools.Executor
	Chain    *Chain
	Events   *Emitter
	Audit    *audit.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Logger   *slog.Logger

	DefaultTimeout  time.Duration
	MaxHistoryTurns int
}

// Orchestrator coordinates one request at a time per call; instances
// are safe for concurrent use across sessions.
type Orchestrator struct {
	sessions *sessions.Manager
	registry *tools.Registry
	executor *tools.Executor
	chain    *Chain
	events   *Emitter
	audit    *audit.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger

	defaultTimeout  time.Duration
	maxHistoryTurns int

	mu     sync.Mutex
	closed bool
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := clampTimeout(cfg.DefaultTimeout)
	maxTurns := cfg.MaxHistoryTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxHistoryTurns
	}
	return &Orchestrator{
		sessions:        cfg.Sessions,
		registry:        cfg.Registry,
		executor:        cfg.Executor,
		chain:           cfg.Chain,
		events:          cfg.Events,
		audit:           cfg.Audit,
		metrics:         cfg.Metrics,
		tracer:          cfg.Tracer,
		logger:          logger,
		defaultTimeout:  timeout,
		maxHistoryTurns: maxTurns,
	}
}

// ProcessRequest runs the full pipeline: load session, select a
// provider, build the prompt, call for a completion, execute any
// requested tools, assemble the response. Every failure is returned as
// a typed *Error.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	timeout := o.requestTimeout(req.Options)

	ctx, span := o.tracer.Start(ctx, "orchestrator.process_request",
		attribute.String("session.id", req.SessionID))
	defer span.End()

	state := newRequestState()
	resp, err := o.process(ctx, req, timeout, state)
	if err != nil {
		typed := classify(err, timeout)
		if state.current != StateIdle {
			o.advance(state, StateError)
		}
		o.tracer.RecordError(span, typed)
		o.emitError(ctx, req.SessionID, typed)
		if o.metrics != nil {
			o.metrics.RequestProcessed("sync", false, time.Since(start))
			o.metrics.ErrorRecorded("orchestrator", typed.Code)
		}
		return nil, typed
	}

	resp.Duration = time.Since(start)
	o.advance(state, StateCompleted)
	if o.metrics != nil {
		o.metrics.RequestProcessed("sync", true, resp.Duration)
	}
	return resp, nil
}

// advance moves a request's state machine, logging transitions the
// table does not allow.
func (o *Orchestrator) advance(s *requestState, to State) {
	from := s.current
	if !s.advance(to) {
		o.logger.Warn("unexpected request state transition",
			"from", string(from),
			"to", string(to),
		)
	}
}

func (o *Orchestrator) process(ctx context.Context, req Request, timeout time.Duration, state *requestState) (*Response, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	session, err := o.sessions.LoadSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return nil, &Error{Code: CodeValidationError, Message: "unknown session", Cause: err}
		}
		return nil, err
	}

	o.advance(state, StateProcessing)
	o.emit(EventRequestReceived, session.ID, map[string]any{"message_len": len(req.Message)})
	o.auditLifecycle(ctx, audit.EventRequestReceived, session.ID, nil)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provider, err := o.chain.Select(ctx)
	if err != nil {
		return nil, err
	}
	o.emit(EventProviderSelected, session.ID, map[string]any{"provider": provider.Name()})
	o.auditLifecycle(ctx, audit.EventProviderSelected, session.ID, map[string]any{"provider": provider.Name()})

	messages, err := o.buildRequestMessages(ctx, session, req)
	if err != nil {
		return nil, err
	}

	providerStart := time.Now()
	completion, err := provider.Complete(ctx, messages, CompletionOptions{
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
	})
	if err != nil {
		o.chain.RecordFailure(provider.Name())
		if o.metrics != nil {
			o.metrics.ProviderCall(provider.Name(), "", false, time.Since(providerStart), 0, 0)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, newError(CodeProviderError, "provider completion failed", err)
	}
	if o.metrics != nil {
		o.metrics.ProviderCall(provider.Name(), completion.Model, true, time.Since(providerStart),
			completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	}

	toolCalls := NormalizeToolCalls(completion.ToolCalls)
	var callResults []models.ToolCallResult
	if len(toolCalls) > 0 {
		o.advance(state, StateExecutingTools)
		callResults = o.executeToolCalls(ctx, session, toolCalls)
		o.emit(EventToolsExecuted, session.ID, map[string]any{"count": len(callResults)})
	}

	o.recordTurns(ctx, session.ID, req.Message, completion.Text, toolCalls, callResults)

	o.emit(EventResponseGenerated, session.ID, map[string]any{
		"provider": provider.Name(),
		"model":    completion.Model,
	})
	o.auditLifecycle(ctx, audit.EventResponseGenerated, session.ID, map[string]any{"provider": provider.Name()})

	return &Response{
		Content:   completion.Text,
		ToolCalls: callResults,
		Citations: []string{},
		Usage: Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.PromptTokens + completion.Usage.CompletionTokens,
		},
		Provider: provider.Name(),
		Model:    completion.Model,
		Metadata: map[string]any{},
	}, nil
}

// ProcessStreamingRequest performs the same setup as ProcessRequest
// but drives the provider's streaming interface. Tool calls are not
// handled on this path. The returned channel yields text chunks and a
// terminal done event, then closes.
func (o *Orchestrator) ProcessStreamingRequest(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if err := o.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	timeout := o.requestTimeout(req.Options)

	session, err := o.sessions.LoadSession(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return nil, &Error{Code: CodeValidationError, Message: "unknown session", Cause: err}
		}
		return nil, err
	}
	state := newRequestState()
	o.advance(state, StateStreamingResponse)
	o.emit(EventRequestReceived, session.ID, map[string]any{"streaming": true})

	ctx, cancel := context.WithTimeout(ctx, timeout)

	provider, err := o.chain.Select(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	o.emit(EventProviderSelected, session.ID, map[string]any{"provider": provider.Name()})

	messages, err := o.buildRequestMessages(ctx, session, req)
	if err != nil {
		cancel()
		return nil, err
	}

	chunks, err := provider.Stream(ctx, messages, CompletionOptions{
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
	})
	if err != nil {
		cancel()
		o.advance(state, StateError)
		o.chain.RecordFailure(provider.Name())
		return nil, newError(CodeProviderError, "provider stream failed", err)
	}

	start := time.Now()
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer cancel()

		var assembled []byte
		for chunk := range chunks {
			if chunk.Done {
				break
			}
			assembled = append(assembled, chunk.Text...)
			select {
			case out <- StreamEvent{SessionID: session.ID, Provider: provider.Name(), Content: chunk.Text}:
			case <-ctx.Done():
				return
			}
		}

		o.recordTurns(ctx, session.ID, req.Message, string(assembled), nil, nil)
		o.emit(EventResponseGenerated, session.ID, map[string]any{
			"provider":  provider.Name(),
			"streaming": true,
		})
		o.advance(state, StateCompleted)
		if o.metrics != nil {
			o.metrics.RequestProcessed("streaming", true, time.Since(start))
		}

		select {
		case out <- StreamEvent{SessionID: session.ID, Provider: provider.Name(), Done: true}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// buildRequestMessages assembles the system prompt and provider
// message list for one request.
func (o *Orchestrator) buildRequestMessages(ctx context.Context, session *models.Session, req Request) ([]Message, error) {
	var toolDefs []models.ToolDefinition
	if len(req.Options.EnabledTools) > 0 {
		for _, name := range req.Options.EnabledTools {
			if def, ok := o.registry.Get(name); ok {
				toolDefs = append(toolDefs, def)
			}
		}
	} else {
		toolDefs = o.registry.List("")
	}

	relevant := o.sessions.RelevantContext(session, req.Message)
	systemPrompt := buildSystemPrompt(session, toolDefs, relevant)

	history, err := o.sessions.History(ctx, session.ID, o.maxHistoryTurns)
	if err != nil {
		return nil, err
	}
	return buildMessages(systemPrompt, history, req.Message, o.maxHistoryTurns), nil
}

// executeToolCalls runs normalized tool calls sequentially under the
// session's capability envelope. Per-call failures become entries in
// the result list, never request failures.
func (o *Orchestrator) executeToolCalls(ctx context.Context, session *models.Session, calls []models.ToolCall) []models.ToolCallResult {
	execCtx := models.ExecutionContext{
		OrgID:          session.OrgID,
		UserID:         session.UserID,
		SessionID:      session.ID,
		ConversationID: session.ID,
		Timestamp:      time.Now(),
	}

	results := make([]models.ToolCallResult, 0, len(calls))
	for _, call := range calls {
		toolResult := o.executor.Execute(ctx, call.Name, call.Arguments, execCtx, tools.ExecOptions{})
		results = append(results, models.ToolCallResult{
			CallID:   call.ID,
			Name:     call.Name,
			Success:  toolResult.Success,
			Result:   toolResult.Data,
			Error:    toolResult.Error,
			Duration: toolResult.Duration,
		})
	}
	return results
}

// recordTurns appends the user message and the assistant reply to the
// session history. Append failures are logged, not surfaced; the
// response has already been produced.
func (o *Orchestrator) recordTurns(ctx context.Context, sessionID, userMessage, reply string, calls []models.ToolCall, results []models.ToolCallResult) {
	if err := o.sessions.AddTurn(ctx, sessionID, models.ConversationTurn{
		Role:    models.RoleUser,
		Content: userMessage,
	}); err != nil {
		o.logger.Error("failed to record user turn", "session_id", sessionID, "error", err)
		return
	}
	if err := o.sessions.AddTurn(ctx, sessionID, models.ConversationTurn{
		Role:        models.RoleAssistant,
		Content:     reply,
		ToolCalls:   calls,
		ToolResults: results,
	}); err != nil {
		o.logger.Error("failed to record assistant turn", "session_id", sessionID, "error", err)
	}
}

// Close stops accepting requests and emits a shutdown event. It is
// idempotent.
func (o *Orchestrator) Close(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.emit(EventShutdown, "", nil)
	o.auditLifecycle(ctx, audit.EventShutdown, "", nil)
	o.logger.Info("orchestrator shut down")
}

func (o *Orchestrator) checkOpen() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return &Error{Code: CodeInternalError, Message: "orchestrator is closed"}
	}
	return nil
}

func (o *Orchestrator) requestTimeout(opts RequestOptions) time.Duration {
	if opts.Timeout > 0 {
		return clampTimeout(opts.Timeout)
	}
	return o.defaultTimeout
}

func (o *Orchestrator) emit(eventType, sessionID string, payload map[string]any) {
	o.events.Emit(eventType, sessionID, payload)
}

func (o *Orchestrator) emitError(ctx context.Context, sessionID string, typed *Error) {
	o.emit(EventErrorOccurred, sessionID, map[string]any{"code": typed.Code, "message": typed.Message})
	o.auditLifecycle(ctx, audit.EventErrorOccurred, sessionID, map[string]any{"code": typed.Code})
}

func (o *Orchestrator) auditLifecycle(ctx context.Context, typ audit.EventType, sessionID string, details map[string]any) {
	if o.audit != nil {
		o.audit.Lifecycle(ctx, typ, sessionID, details)
	}
}

func validateRequest(req Request) error {
	if req.SessionID == "" {
		return &Error{Code: CodeValidationError, Message: "session id is required"}
	}
	if req.Message == "" {
		return &Error{Code: CodeValidationError, Message: "message is required"}
	}
	return nil
}

func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultRequestTimeout
	case d < MinRequestTimeout:
		return MinRequestTimeout
	case d > MaxRequestTimeout:
		return MaxRequestTimeout
	default:
		return d
	}
}
