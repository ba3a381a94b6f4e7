package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/halcyon-ai/halcyon/internal/audit"
	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/internal/observability"
	"github.com/halcyon-ai/halcyon/internal/schema"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Timeout bounds for a single tool invocation.
const (
	DefaultToolTimeout = 30 * time.Second
	MinToolTimeout     = 1 * time.Second
	MaxToolTimeout     = 60 * time.Second
)

// ExecOptions tune one execution. The zero value means: default
// timeout, both validations on, live run.
type ExecOptions struct {
	// Timeout bounds the handler invocation. Clamped to
	// [MinToolTimeout, MaxToolTimeout]; zero means DefaultToolTimeout.
	Timeout time.Duration

	// SkipInputValidation disables input schema validation.
	SkipInputValidation bool

	// SkipOutputValidation disables output schema validation.
	SkipOutputValidation bool

	// DryRun marks the call as a rehearsal. Batch execution does not
	// stop on a failed dry-run entry.
	DryRun bool
}

func (o ExecOptions) timeout() time.Duration {
	t := o.Timeout
	if t == 0 {
		t = DefaultToolTimeout
	}
	if t < MinToolTimeout {
		t = MinToolTimeout
	}
	if t > MaxToolTimeout {
		t = MaxToolTimeout
	}
	return t
}

// ExecutorConfig wires the executor's collaborators. Registry,
// Handlers, and Permissions are required; the rest are optional.
type ExecutorConfig struct {
	Registry    *Registry
	Handlers    *HandlerRegistry
	Permissions auth.Resolver
	Audit       *audit.Logger
	Metrics     *observability.Metrics
	Tracer      *observability.Tracer
	Logger      *slog.Logger
}

// Executor runs tools through the full pipeline: lookup, permission
// check, input validation, timeout-bounded invocation, output
// validation, audit. It is stateless and safe for concurrent use.
//
// Execute never returns an error: every failure is data inside the
// ToolResult envelope.
type Executor struct {
	registry *Registry
	handlers *HandlerRegistry
	perms    auth.Resolver
	audit    *audit.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewExecutor creates a tool executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: cfg.Registry,
		handlers: cfg.Handlers,
		perms:    cfg.Permissions,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
		logger:   logger,
	}
}

// Execute runs one tool call through the pipeline.
func (e *Executor) Execute(ctx context.Context, name string, args json.RawMessage, execCtx models.ExecutionContext, opts ExecOptions) *models.ToolResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "tools.execute",
		attribute.String("tool.name", name),
		attribute.String("session.id", execCtx.SessionID))
	defer span.End()
	if execCtx.Timestamp.IsZero() {
		execCtx.Timestamp = time.Now()
	}

	def, ok := e.registry.Get(name)
	if !ok {
		return e.fail(ctx, start, name, "", execCtx, CodeToolNotFound,
			fmt.Sprintf("tool not found: %s", name), nil)
	}

	perms, err := e.perms.Permissions(ctx, execCtx.UserID)
	if err != nil {
		return e.fail(ctx, start, def.Name, def.Version, execCtx, CodeExecutionError,
			"resolve caller permissions: "+err.Error(), nil)
	}
	set := auth.NewPermissionSet(perms)
	if !set.HasAll(def.RequiredPermissions) {
		missing := set.Missing(def.RequiredPermissions)
		if e.audit != nil {
			e.audit.ToolDenied(ctx, def.Name, execCtx, missing)
		}
		return e.fail(ctx, start, def.Name, def.Version, execCtx, CodePermissionDenied,
			fmt.Sprintf("caller %s lacks required permissions", execCtx.UserID),
			map[string]any{"missing": missing})
	}

	inputSchema, outputSchema := e.registry.schemas(def.Name)
	if !opts.SkipInputValidation && inputSchema != nil {
		if verr := inputSchema.ValidateJSON(args); verr != nil {
			return e.fail(ctx, start, def.Name, def.Version, execCtx, CodeValidationError,
				"input validation failed", diagnosticsDetail(verr))
		}
	}

	handler, ok := e.handlers.Get(def.Name)
	if !ok {
		return e.fail(ctx, start, def.Name, def.Version, execCtx, CodeExecutionError,
			fmt.Sprintf("%v: %s", ErrHandlerNotFound, def.Name), nil)
	}

	if e.audit != nil {
		e.audit.ToolInvocation(ctx, def.Name, def.Version, execCtx)
	}

	data, timedOut, err := e.invoke(ctx, def.Name, handler, args, execCtx, opts.timeout())
	if timedOut {
		return e.fail(ctx, start, def.Name, def.Version, execCtx, CodeExecutionTimeout,
			fmt.Sprintf("tool execution timed out after %v", opts.timeout()), nil)
	}
	if err != nil {
		return e.fail(ctx, start, def.Name, def.Version, execCtx, classifyHandlerError(err),
			err.Error(), nil)
	}

	if !opts.SkipOutputValidation && outputSchema != nil {
		if verr := validateOutput(outputSchema, data); verr != nil {
			return e.fail(ctx, start, def.Name, def.Version, execCtx, CodeValidationError,
				"output validation failed", diagnosticsDetail(verr))
		}
	}

	duration := time.Since(start)
	result := &models.ToolResult{
		Success:  true,
		Data:     data,
		Duration: duration,
		Audit:    e.auditBlock(def.Name, def.Version, execCtx),
	}
	e.record(ctx, def.Name, execCtx, duration, true, "")
	return result
}

// BatchEntry is one call in a sequential batch.
type BatchEntry struct {
	Name    string
	Args    json.RawMessage
	Options ExecOptions
}

// ExecuteBatch runs entries one at a time in order, stopping at the
// first failure unless the failed entry was marked as a dry run.
// There is no implicit parallelism and no partial rollback.
func (e *Executor) ExecuteBatch(ctx context.Context, entries []BatchEntry, execCtx models.ExecutionContext) []*models.ToolResult {
	results := make([]*models.ToolResult, 0, len(entries))
	for _, entry := range entries {
		result := e.Execute(ctx, entry.Name, entry.Args, execCtx, entry.Options)
		results = append(results, result)
		if !result.Success && !entry.Options.DryRun {
			break
		}
	}
	return results
}

// invoke races the handler against the timeout. The loser's eventual
// result is discarded; the handler itself is only cancelled through
// its context, which cooperative handlers should honor.
func (e *Executor) invoke(ctx context.Context, name string, handler Handler, args json.RawMessage, execCtx models.ExecutionContext, timeout time.Duration) (any, bool, error) {
	type outcome struct {
		data any
		err  error
	}

	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan outcome, 1)
	go func() {
		data, err := handler(toolCtx, args, execCtx)
		select {
		case results <- outcome{data: data, err: err}:
		default:
			// The deadline already won the race.
			e.logger.Warn("tool handler settled after timeout, result discarded",
				"tool", name,
				"session_id", execCtx.SessionID,
			)
		}
	}()

	select {
	case <-toolCtx.Done():
		timedOut := errors.Is(toolCtx.Err(), context.DeadlineExceeded)
		return nil, timedOut, toolCtx.Err()
	case out := <-results:
		return out.data, false, out.err
	}
}

func (e *Executor) auditBlock(name, version string, execCtx models.ExecutionContext) models.AuditInfo {
	return models.AuditInfo{
		ToolName:    name,
		ToolVersion: version,
		ExecutedAt:  time.Now(),
		ExecutedBy:  execCtx.UserID,
		Context:     execCtx,
	}
}

func (e *Executor) fail(ctx context.Context, start time.Time, name, version string, execCtx models.ExecutionContext, code, message string, details any) *models.ToolResult {
	duration := time.Since(start)
	result := &models.ToolResult{
		Success: false,
		Error: &models.ToolError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Duration: duration,
		Audit:    e.auditBlock(name, version, execCtx),
	}
	e.record(ctx, name, execCtx, duration, false, code)
	return result
}

// record emits the audit completion event and metrics for one call.
func (e *Executor) record(ctx context.Context, name string, execCtx models.ExecutionContext, duration time.Duration, success bool, code string) {
	if e.audit != nil {
		e.audit.ToolCompletion(ctx, name, execCtx, duration, success, code)
	}
	if e.metrics != nil {
		e.metrics.ToolExecuted(name, success, duration)
	}
	if !success {
		e.logger.Debug("tool execution failed",
			"tool", name,
			"code", code,
			"user_id", execCtx.UserID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func validateOutput(s *schema.Schema, data any) error {
	// Handlers may return arbitrary Go values; normalize through JSON
	// so struct payloads validate the same as map payloads.
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode tool output: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode tool output: %w", err)
	}
	return s.Validate(decoded)
}

func diagnosticsDetail(err error) map[string]any {
	return map[string]any{"diagnostics": schema.Diagnostics(err)}
}
