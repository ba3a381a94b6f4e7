package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

type executorFixture struct {
	registry *Registry
	handlers *HandlerRegistry
	resolver *auth.StaticResolver
	executor *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		registry: NewRegistry(),
		handlers: NewHandlerRegistry(),
		resolver: auth.NewStaticResolver(nil),
	}
	f.executor = NewExecutor(ExecutorConfig{
		Registry:    f.registry,
		Handlers:    f.handlers,
		Permissions: f.resolver,
	})
	return f
}

func (f *executorFixture) addTool(t *testing.T, def models.ToolDefinition, handler Handler) {
	t.Helper()
	if err := f.registry.Register(def); err != nil {
		t.Fatalf("Register %s: %v", def.Name, err)
	}
	if err := f.handlers.Bind(def.Name, handler); err != nil {
		t.Fatalf("Bind %s: %v", def.Name, err)
	}
}

func baseCtx() models.ExecutionContext {
	return models.ExecutionContext{OrgID: "org-1", UserID: "user-1", SessionID: "session-1"}
}

func echoHandler(_ context.Context, args json.RawMessage, _ models.ExecutionContext) (any, error) {
	var payload map[string]any
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func TestExecuteUnknownToolNeverRaises(t *testing.T) {
	f := newExecutorFixture(t)

	result := f.executor.Execute(context.Background(), "ghost", json.RawMessage(`{}`), baseCtx(), ExecOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error.Code != CodeToolNotFound {
		t.Fatalf("expected %s, got %s", CodeToolNotFound, result.Error.Code)
	}
}

func TestExecutePermissionDeniedSkipsHandler(t *testing.T) {
	f := newExecutorFixture(t)

	invoked := false
	f.addTool(t, testDef("guarded", "inventory:write"), func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		invoked = true
		return nil, nil
	})

	result := f.executor.Execute(context.Background(), "guarded", json.RawMessage(`{}`), baseCtx(), ExecOptions{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Error.Code != CodePermissionDenied {
		t.Fatalf("expected %s, got %s", CodePermissionDenied, result.Error.Code)
	}
	if invoked {
		t.Fatal("handler must not run for a denied caller")
	}

	details, ok := result.Error.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", result.Error.Details)
	}
	missing, ok := details["missing"].([]string)
	if !ok || len(missing) != 1 || missing[0] != "inventory:write" {
		t.Fatalf("details should name the missing permissions: %v", details)
	}
}

func TestExecuteValidatesInputBeforeHandler(t *testing.T) {
	f := newExecutorFixture(t)

	invoked := false
	def := testDef("strict")
	def.InputSchema = json.RawMessage(`{"type":"object","properties":{"sku":{"type":"string"}},"required":["sku"]}`)
	f.addTool(t, def, func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		invoked = true
		return nil, nil
	})

	result := f.executor.Execute(context.Background(), "strict", json.RawMessage(`{"sku":7}`), baseCtx(), ExecOptions{})
	if result.Success || result.Error.Code != CodeValidationError {
		t.Fatalf("expected %s, got %+v", CodeValidationError, result)
	}
	if invoked {
		t.Fatal("handler must not run on invalid input")
	}

	details, _ := result.Error.Details.(map[string]any)
	if diags, ok := details["diagnostics"].([]string); !ok || len(diags) == 0 {
		t.Fatalf("validation failure should carry diagnostics: %v", details)
	}

	// Skipping validation lets the same input through.
	result = f.executor.Execute(context.Background(), "strict", json.RawMessage(`{"sku":7}`), baseCtx(), ExecOptions{SkipInputValidation: true})
	if !result.Success {
		t.Fatalf("skip-validation run failed: %+v", result.Error)
	}
}

func TestExecuteTimeoutRace(t *testing.T) {
	f := newExecutorFixture(t)

	f.addTool(t, testDef("slow"), func(ctx context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	f.addTool(t, testDef("quick"), func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		time.Sleep(20 * time.Millisecond)
		return "made it", nil
	})

	result := f.executor.Execute(context.Background(), "slow", json.RawMessage(`{}`), baseCtx(), ExecOptions{Timeout: time.Second})
	if result.Success || result.Error.Code != CodeExecutionTimeout {
		t.Fatalf("expected %s, got %+v", CodeExecutionTimeout, result)
	}

	result = f.executor.Execute(context.Background(), "quick", json.RawMessage(`{}`), baseCtx(), ExecOptions{Timeout: time.Second})
	if !result.Success || result.Data != "made it" {
		t.Fatalf("handler settling under the deadline should win: %+v", result)
	}
}

func TestExecuteClassifiesHandlerErrors(t *testing.T) {
	f := newExecutorFixture(t)

	cases := []struct {
		name string
		err  error
		code string
	}{
		{"err_generic", errors.New("disk exploded"), CodeExecutionError},
		{"err_timeout", errors.New("upstream timeout while fetching"), CodeExecutionTimeout},
		{"err_denied", errors.New("permission refused by backend"), CodePermissionDenied},
		{"err_invalid", errors.New("validation failed for field sku"), CodeValidationError},
	}
	for _, tc := range cases {
		err := tc.err
		f.addTool(t, testDef(tc.name), func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
			return nil, err
		})
		result := f.executor.Execute(context.Background(), tc.name, json.RawMessage(`{}`), baseCtx(), ExecOptions{})
		if result.Success || result.Error.Code != tc.code {
			t.Errorf("%s: expected %s, got %+v", tc.name, tc.code, result.Error)
		}
	}
}

func TestExecuteValidatesOutput(t *testing.T) {
	f := newExecutorFixture(t)

	def := testDef("typed_output")
	def.OutputSchema = json.RawMessage(`{"type":"object","properties":{"count":{"type":"integer"}},"required":["count"]}`)
	f.addTool(t, def, func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		return map[string]any{"count": "not a number"}, nil
	})

	result := f.executor.Execute(context.Background(), "typed_output", json.RawMessage(`{}`), baseCtx(), ExecOptions{})
	if result.Success || result.Error.Code != CodeValidationError {
		t.Fatalf("expected output validation failure, got %+v", result)
	}

	result = f.executor.Execute(context.Background(), "typed_output", json.RawMessage(`{}`), baseCtx(), ExecOptions{SkipOutputValidation: true})
	if !result.Success {
		t.Fatalf("skip-output-validation run failed: %+v", result.Error)
	}
}

func TestExecuteSuccessEnvelope(t *testing.T) {
	f := newExecutorFixture(t)
	f.addTool(t, testDef("echo"), echoHandler)

	result := f.executor.Execute(context.Background(), "echo", json.RawMessage(`{"sku":"A-1"}`), baseCtx(), ExecOptions{})
	if !result.Success {
		t.Fatalf("echo failed: %+v", result.Error)
	}
	data, _ := result.Data.(map[string]any)
	if data["sku"] != "A-1" {
		t.Fatalf("unexpected data: %v", result.Data)
	}
	if result.Audit.ToolName != "echo" || result.Audit.ExecutedBy != "user-1" {
		t.Fatalf("unexpected audit block: %+v", result.Audit)
	}
	if result.Audit.Context.SessionID != "session-1" {
		t.Fatalf("audit context should carry the session: %+v", result.Audit.Context)
	}
}

func TestExecuteBatchStopsOnFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.addTool(t, testDef("ok"), echoHandler)
	f.addTool(t, testDef("boom"), func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		return nil, errors.New("handler failed")
	})

	results := f.executor.ExecuteBatch(context.Background(), []BatchEntry{
		{Name: "ok", Args: json.RawMessage(`{}`)},
		{Name: "boom", Args: json.RawMessage(`{}`)},
		{Name: "ok", Args: json.RawMessage(`{}`)},
	}, baseCtx())

	if len(results) != 2 {
		t.Fatalf("batch should stop at the failure, got %d results", len(results))
	}
	if results[0].Success != true || results[1].Success != false {
		t.Fatalf("unexpected batch outcomes: %+v", results)
	}
}

func TestExecuteBatchContinuesPastDryRunFailure(t *testing.T) {
	f := newExecutorFixture(t)
	f.addTool(t, testDef("ok"), echoHandler)
	f.addTool(t, testDef("boom"), func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		return nil, errors.New("handler failed")
	})

	results := f.executor.ExecuteBatch(context.Background(), []BatchEntry{
		{Name: "boom", Args: json.RawMessage(`{}`), Options: ExecOptions{DryRun: true}},
		{Name: "ok", Args: json.RawMessage(`{}`)},
	}, baseCtx())

	if len(results) != 2 {
		t.Fatalf("dry-run failure should not stop the batch, got %d results", len(results))
	}
	if !results[1].Success {
		t.Fatalf("second entry should run: %+v", results[1])
	}
}

func TestHandlerRegistryRebind(t *testing.T) {
	h := NewHandlerRegistry()
	if err := h.Bind("alpha", echoHandler); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := h.Bind("alpha", echoHandler); err == nil {
		t.Fatal("rebinding a name should fail")
	}
	if _, ok := h.Get("alpha"); !ok {
		t.Fatal("original binding should remain")
	}
}

func TestExecOptionsTimeoutClamp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultToolTimeout},
		{time.Millisecond, MinToolTimeout},
		{5 * time.Second, 5 * time.Second},
		{time.Hour, MaxToolTimeout},
	}
	for _, tc := range cases {
		if got := (ExecOptions{Timeout: tc.in}).timeout(); got != tc.want {
			t.Errorf("timeout(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
