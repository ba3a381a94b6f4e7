package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/internal/sessions"
	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

type fakeProvider struct {
	name       string
	available  bool
	completion *Completion
	err        error
	chunks     []StreamChunk
	calls      int
}

func (p *fakeProvider) Name() string                     { return p.name }
func (p *fakeProvider) Available(_ context.Context) bool { return p.available }

func (p *fakeProvider) Complete(_ context.Context, _ []Message, _ CompletionOptions) (*Completion, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.completion, nil
}

func (p *fakeProvider) Stream(_ context.Context, _ []Message, _ CompletionOptions) (<-chan StreamChunk, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make(chan StreamChunk, len(p.chunks))
	for _, c := range p.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

type fixture struct {
	orch     *Orchestrator
	sessions *sessions.Manager
	session  *models.Session
	events   *Emitter
}

func newFixture(t *testing.T, provider Provider) *fixture {
	t.Helper()

	registry := tools.NewRegistry()
	handlers := tools.NewHandlerRegistry()
	resolver := auth.NewStaticResolver(nil)
	resolver.Grant("user-1", "inventory:read")

	def := models.ToolDefinition{
		Name:                "check_inventory",
		Description:         "Check stock levels",
		Category:            "inventory",
		InputSchema:         json.RawMessage(`{"type":"object"}`),
		RequiredPermissions: []string{"inventory:read"},
		Version:             "1.0.0",
	}
	if err := registry.Register(def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := handlers.Bind("check_inventory", func(_ context.Context, _ json.RawMessage, _ models.ExecutionContext) (any, error) {
		return map[string]any{"sku": "A-1", "on_hand": 40}, nil
	}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:    registry,
		Handlers:    handlers,
		Permissions: resolver,
	})

	mgr := sessions.NewManager(nil, nil, nil)
	session, err := mgr.CreateSession(context.Background(), "user-1", "org-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	events := NewEmitter()
	orch := New(Config{
		Sessions: mgr,
		Registry: registry,
		Executor: executor,
		Chain:    NewChain(nil, provider),
		Events:   events,
	})
	return &fixture{orch: orch, sessions: mgr, session: session, events: events}
}

func TestProcessRequestHappyPath(t *testing.T) {
	provider := &fakeProvider{
		name:      "scripted",
		available: true,
		completion: &Completion{
			Text:  "Stock looks healthy.",
			Model: "scripted-1",
			Usage: Usage{PromptTokens: 20, CompletionTokens: 10},
			ToolCalls: []json.RawMessage{
				json.RawMessage(`{"id":"call-1","name":"check_inventory","arguments":{"sku":"A-1"}}`),
			},
		},
	}
	f := newFixture(t, provider)

	var seen []string
	f.events.Subscribe(func(e LifecycleEvent) { seen = append(seen, e.Type) })

	resp, err := f.orch.ProcessRequest(context.Background(), Request{
		SessionID: f.session.ID,
		Message:   "how much stock of A-1 is left?",
	})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}

	if resp.Content != "Stock looks healthy." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.Provider != "scripted" || resp.Model != "scripted-1" {
		t.Fatalf("unexpected provider metadata: %+v", resp)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call result, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.CallID != "call-1" || call.Name != "check_inventory" || !call.Success {
		t.Fatalf("unexpected tool call result: %+v", call)
	}
	if resp.Citations == nil || len(resp.Citations) != 0 {
		t.Fatalf("citations should be present and empty: %v", resp.Citations)
	}

	// The user message and the assistant reply land in history.
	history, err := f.sessions.History(context.Background(), f.session.ID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Role != models.RoleUser || history[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected history: %+v", history)
	}
	if len(history[1].ToolResults) != 1 {
		t.Fatalf("assistant turn should carry tool results: %+v", history[1])
	}

	wantEvents := []string{EventRequestReceived, EventProviderSelected, EventToolsExecuted, EventResponseGenerated}
	if len(seen) != len(wantEvents) {
		t.Fatalf("expected events %v, got %v", wantEvents, seen)
	}
	for i, want := range wantEvents {
		if seen[i] != want {
			t.Fatalf("event %d: got %q, want %q", i, seen[i], want)
		}
	}
}

func TestProcessRequestValidation(t *testing.T) {
	provider := &fakeProvider{name: "scripted", available: true, completion: &Completion{Text: "ok"}}
	f := newFixture(t, provider)

	cases := []Request{
		{SessionID: "", Message: "hi"},
		{SessionID: f.session.ID, Message: ""},
		{SessionID: "nope", Message: "hi"},
	}
	for _, req := range cases {
		_, err := f.orch.ProcessRequest(context.Background(), req)
		var typed *Error
		if !errors.As(err, &typed) {
			t.Fatalf("%+v: expected typed error, got %v", req, err)
		}
		if typed.Code != CodeValidationError {
			t.Fatalf("%+v: expected %s, got %s", req, CodeValidationError, typed.Code)
		}
	}
	if provider.calls != 0 {
		t.Fatalf("provider should not be called for invalid requests, got %d calls", provider.calls)
	}
}

func TestProcessRequestNoProvidersAvailable(t *testing.T) {
	provider := &fakeProvider{name: "down", available: false}
	f := newFixture(t, provider)

	_, err := f.orch.ProcessRequest(context.Background(), Request{SessionID: f.session.ID, Message: "hi"})
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != CodeNoProvidersAvailable {
		t.Fatalf("expected %s, got %v", CodeNoProvidersAvailable, err)
	}
}

func TestProcessRequestProviderError(t *testing.T) {
	provider := &fakeProvider{name: "flaky", available: true, err: errors.New("upstream exploded")}
	f := newFixture(t, provider)

	_, err := f.orch.ProcessRequest(context.Background(), Request{SessionID: f.session.ID, Message: "hi"})
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != CodeProviderError {
		t.Fatalf("expected %s, got %v", CodeProviderError, err)
	}
	if f.orch.chain.Failures()["flaky"] != 1 {
		t.Fatalf("chain should record the failure: %v", f.orch.chain.Failures())
	}
}

func TestProcessRequestTimeoutClassification(t *testing.T) {
	provider := &fakeProvider{name: "slow", available: true, err: context.DeadlineExceeded}
	f := newFixture(t, provider)

	_, err := f.orch.ProcessRequest(context.Background(), Request{
		SessionID: f.session.ID,
		Message:   "hi",
		Options:   RequestOptions{Timeout: 2 * time.Second},
	})
	var typed *Error
	if !errors.As(err, &typed) || typed.Code != CodeTimeout {
		t.Fatalf("expected %s, got %v", CodeTimeout, err)
	}
}

func TestProcessStreamingRequest(t *testing.T) {
	provider := &fakeProvider{
		name:      "scripted",
		available: true,
		chunks: []StreamChunk{
			{Text: "Stock "},
			{Text: "is fine."},
			{Done: true},
		},
	}
	f := newFixture(t, provider)

	stream, err := f.orch.ProcessStreamingRequest(context.Background(), Request{
		SessionID: f.session.ID,
		Message:   "stock status?",
	})
	if err != nil {
		t.Fatalf("ProcessStreamingRequest: %v", err)
	}

	var events []StreamEvent
	for e := range stream {
		events = append(events, e)
	}
	if len(events) != 3 {
		t.Fatalf("expected 2 chunks plus done, got %+v", events)
	}
	for _, e := range events[:2] {
		if e.SessionID != f.session.ID || e.Provider != "scripted" || e.Done {
			t.Fatalf("unexpected chunk: %+v", e)
		}
	}
	if !events[2].Done {
		t.Fatalf("terminal event should be the done marker: %+v", events[2])
	}

	history, _ := f.sessions.History(context.Background(), f.session.ID, 0)
	if len(history) != 2 || history[1].Content != "Stock is fine." {
		t.Fatalf("assembled reply should be recorded: %+v", history)
	}
}

func TestCloseRejectsFurtherRequests(t *testing.T) {
	provider := &fakeProvider{name: "scripted", available: true, completion: &Completion{Text: "ok"}}
	f := newFixture(t, provider)

	var shutdowns int
	f.events.Subscribe(func(e LifecycleEvent) {
		if e.Type == EventShutdown {
			shutdowns++
		}
	})

	f.orch.Close(context.Background())
	f.orch.Close(context.Background())
	if shutdowns != 1 {
		t.Fatalf("close should emit exactly one shutdown event, got %d", shutdowns)
	}

	_, err := f.orch.ProcessRequest(context.Background(), Request{SessionID: f.session.ID, Message: "hi"})
	if err == nil {
		t.Fatal("closed orchestrator should reject requests")
	}
}

func TestEmitterSequencing(t *testing.T) {
	e := NewEmitter()
	var seqs []uint64
	e.Subscribe(func(ev LifecycleEvent) { seqs = append(seqs, ev.Seq) })

	e.Emit(EventRequestReceived, "s", nil)
	e.Emit(EventProviderSelected, "s", nil)
	e.Emit(EventResponseGenerated, "s", nil)

	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("sequence %d: got %d", i, seq)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	allowed := [][2]State{
		{StateIdle, StateProcessing},
		{StateIdle, StateStreamingResponse},
		{StateProcessing, StateExecutingTools},
		{StateProcessing, StateCompleted},
		{StateProcessing, StateError},
		{StateExecutingTools, StateCompleted},
		{StateStreamingResponse, StateError},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]State{
		{StateIdle, StateCompleted},
		{StateCompleted, StateProcessing},
		{StateError, StateCompleted},
		{StateExecutingTools, StateProcessing},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be denied", pair[0], pair[1])
		}
	}
}

func TestClampTimeout(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, DefaultRequestTimeout},
		{-time.Second, DefaultRequestTimeout},
		{time.Millisecond, MinRequestTimeout},
		{10 * time.Second, 10 * time.Second},
		{time.Hour, MaxRequestTimeout},
	}
	for _, tc := range cases {
		if got := clampTimeout(tc.in); got != tc.want {
			t.Errorf("clampTimeout(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
