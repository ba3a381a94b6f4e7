package planner

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

type fakeCatalog map[string]bool

func (c fakeCatalog) Has(name string) bool { return c[name] }

// fakeExecutor fails the named tools; failAttempts controls how many
// attempts fail before a tool starts succeeding (0 means fail always).
type fakeExecutor struct {
	failing  map[string]int
	attempts map[string]int
	calls    []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{failing: map[string]int{}, attempts: map[string]int{}}
}

func (f *fakeExecutor) Execute(_ context.Context, name string, _ json.RawMessage, _ models.ExecutionContext, _ tools.ExecOptions) *models.ToolResult {
	f.calls = append(f.calls, name)
	f.attempts[name]++
	if limit, ok := f.failing[name]; ok && (limit == 0 || f.attempts[name] <= limit) {
		return &models.ToolResult{
			Success: false,
			Error:   &models.ToolError{Code: tools.CodeExecutionError, Message: "boom"},
		}
	}
	return &models.ToolResult{Success: true, Data: map[string]any{"ok": true}}
}

func testPlanner(catalog fakeCatalog, exec StepExecutor) *Planner {
	return New(Config{Catalog: catalog, Executor: exec})
}

func TestCreatePlanCreateEntityTemplate(t *testing.T) {
	catalog := fakeCatalog{"create_product": true, "query_entity": true}
	p := testPlanner(catalog, newFakeExecutor())

	plan, err := p.CreatePlan(context.Background(), "create a new product widget", nil)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	wantSteps := []string{"validate_input", "check_permissions", "create_entity", "verify_creation"}
	if len(plan.Steps) != len(wantSteps) {
		t.Fatalf("expected %d steps, got %d", len(wantSteps), len(plan.Steps))
	}
	for i, want := range wantSteps {
		if plan.Steps[i].ID != want {
			t.Fatalf("step %d: got %q, want %q", i, plan.Steps[i].ID, want)
		}
	}
	if plan.Analysis.PrimaryIntent != "create_entity" {
		t.Fatalf("unexpected intent %q", plan.Analysis.PrimaryIntent)
	}
	if plan.EstimatedDuration != 4*defaultStepEstimate {
		t.Fatalf("unexpected estimate %v", plan.EstimatedDuration)
	}

	// Rollback: tool-bound steps only, reversed, rebound to rollback tools.
	if len(plan.Rollback) != 2 {
		t.Fatalf("expected 2 rollback steps, got %d", len(plan.Rollback))
	}
	if plan.Rollback[0].ID != "rollback_verify_creation" || plan.Rollback[0].Tool != "rollback_query_entity" {
		t.Fatalf("unexpected first rollback step: %+v", plan.Rollback[0])
	}
	if plan.Rollback[1].ID != "rollback_create_entity" || plan.Rollback[1].Tool != "rollback_create_product" {
		t.Fatalf("unexpected second rollback step: %+v", plan.Rollback[1])
	}
}

func TestCreatePlanFailsOnUnknownTool(t *testing.T) {
	p := testPlanner(fakeCatalog{}, newFakeExecutor())

	_, err := p.CreatePlan(context.Background(), "create a new product widget", nil)
	if err == nil {
		t.Fatal("expected a validation failure for unregistered tools")
	}
	verr, ok := err.(*PlanValidationError)
	if !ok {
		t.Fatalf("expected *PlanValidationError, got %T", err)
	}
	for _, issue := range verr.Issues {
		if issue.Code != CodeUnknownTool {
			t.Fatalf("unexpected issue code %q", issue.Code)
		}
	}
}

func TestValidatePlanDetectsCycle(t *testing.T) {
	plan := &ExecutionPlan{Steps: []PlanStep{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}}

	result := ValidatePlan(plan, fakeCatalog{})
	if result.Valid {
		t.Fatal("expected validation failure")
	}
	if !hasIssue(result.Errors, CodeCircularDependency) {
		t.Fatalf("missing cycle error: %+v", result.Errors)
	}
}

func TestValidatePlanDetectsInvalidDependency(t *testing.T) {
	plan := &ExecutionPlan{Steps: []PlanStep{
		{ID: "a", DependsOn: []string{"ghost"}},
	}}

	result := ValidatePlan(plan, fakeCatalog{})
	if result.Valid {
		t.Fatal("expected validation failure")
	}
	if !hasIssue(result.Errors, CodeInvalidDependency) {
		t.Fatalf("missing invalid-dependency error: %+v", result.Errors)
	}
}

func TestValidatePlanWarnsOnUngroundedStep(t *testing.T) {
	// b's chain never reaches a zero-dependency root.
	plan := &ExecutionPlan{Steps: []PlanStep{
		{ID: "root"},
		{ID: "a", DependsOn: []string{"root"}},
		{ID: "b", DependsOn: []string{"c"}},
		{ID: "c", DependsOn: []string{"b"}},
	}}

	result := ValidatePlan(plan, fakeCatalog{})
	if !hasIssue(result.Warnings, CodeUnreachableStep) {
		t.Fatalf("missing unreachable warning: %+v", result.Warnings)
	}
	for _, w := range result.Warnings {
		if w.StepID == "root" || w.StepID == "a" {
			t.Fatalf("grounded step flagged unreachable: %+v", w)
		}
	}
}

func TestExecutePlanAllStepsSucceed(t *testing.T) {
	exec := newFakeExecutor()
	p := testPlanner(fakeCatalog{}, exec)

	plan := &ExecutionPlan{
		ID: "plan-1",
		Steps: []PlanStep{
			{ID: "prepare"},
			{ID: "apply", Tool: "update_stock"},
		},
	}

	result, err := p.ExecutePlan(context.Background(), plan, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("ExecutePlan: %v", err)
	}
	if !result.Success || len(result.Completed) != 2 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.RollbackExecuted {
		t.Fatal("rollback should not run on success")
	}
	if result.Completed[1].Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", result.Completed[1].Attempts)
	}
}

func TestExecutePlanGuardFailureTriggersRollback(t *testing.T) {
	exec := newFakeExecutor()
	exec.failing["acl_check"] = 0
	p := testPlanner(fakeCatalog{}, exec)

	plan := &ExecutionPlan{
		ID: "plan-2",
		Steps: []PlanStep{
			{ID: "create_entity", Tool: "create_product"},
			{ID: "check_permissions", Tool: "acl_check"},
		},
		Rollback: []PlanStep{
			{ID: "rollback_create_entity", Tool: "rollback_create_product"},
		},
	}

	result, err := p.ExecutePlan(context.Background(), plan, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("rollback recovery should not surface an error: %v", err)
	}
	if result.Success {
		t.Fatal("plan with a failed step should not be successful")
	}
	if !result.RollbackExecuted {
		t.Fatal("guard step failure should trigger rollback")
	}
	if len(result.RollbackResults) != 1 || result.RollbackResults[0].StepID != "rollback_create_entity" {
		t.Fatalf("unexpected rollback results: %+v", result.RollbackResults)
	}
}

func TestExecutePlanSkipsObservationalFailures(t *testing.T) {
	exec := newFakeExecutor()
	exec.failing["probe"] = 0
	p := testPlanner(fakeCatalog{}, exec)

	plan := &ExecutionPlan{
		ID: "plan-3",
		Steps: []PlanStep{
			{ID: "verify_creation", Tool: "probe"},
			{ID: "finalize", Tool: "update_stock"},
		},
	}

	result, err := p.ExecutePlan(context.Background(), plan, models.ExecutionContext{})
	if err != nil {
		t.Fatalf("skip recovery should not surface an error: %v", err)
	}
	if result.RollbackExecuted {
		t.Fatal("skip should not trigger rollback")
	}
	if len(result.Completed) != 1 || result.Completed[0].StepID != "finalize" {
		t.Fatalf("later steps should still run after a skip: %+v", result)
	}
}

func TestExecutePlanAbortSurfacesError(t *testing.T) {
	exec := newFakeExecutor()
	exec.failing["update_stock"] = 0
	p := testPlanner(fakeCatalog{}, exec)

	plan := &ExecutionPlan{
		ID: "plan-4",
		Steps: []PlanStep{
			{ID: "apply_update", Tool: "update_stock"},
			{ID: "never_runs", Tool: "query_entity"},
		},
		Rollback: []PlanStep{
			{ID: "rollback_apply_update", Tool: "rollback_update_stock"},
		},
	}

	result, err := p.ExecutePlan(context.Background(), plan, models.ExecutionContext{})
	if err == nil {
		t.Fatal("abort should surface an error")
	}
	if result == nil || result.Success {
		t.Fatalf("abort should still return a failed result: %+v", result)
	}
	if !result.RollbackExecuted {
		t.Fatal("abort should attempt rollback first")
	}
	for _, call := range exec.calls {
		if call == "query_entity" {
			t.Fatal("steps after an abort must not run")
		}
	}
}

func TestExecuteStepRetriesWithBackoff(t *testing.T) {
	exec := newFakeExecutor()
	exec.failing["flaky"] = 2
	p := testPlanner(fakeCatalog{}, exec)

	step := PlanStep{
		ID:    "apply",
		Tool:  "flaky",
		Retry: RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
	}

	result := p.executeStep(context.Background(), step, models.ExecutionContext{})
	if !result.Success {
		t.Fatalf("expected success after retries: %+v", result)
	}
	if result.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestExecuteStepStopsRetryingOnCancel(t *testing.T) {
	exec := newFakeExecutor()
	exec.failing["flaky"] = 0
	p := testPlanner(fakeCatalog{}, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	step := PlanStep{
		ID:    "apply",
		Tool:  "flaky",
		Retry: RetryPolicy{MaxRetries: 5, Backoff: time.Minute},
	}

	result := p.executeStep(ctx, step, models.ExecutionContext{})
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts != 1 {
		t.Fatalf("cancelled context should stop retries, got %d attempts", result.Attempts)
	}
}

func TestAnalyzeIntentKeywordTable(t *testing.T) {
	cases := []struct {
		message  string
		intent   string
		planning bool
		level    Complexity
	}{
		{"create a new product widget", "create_entity", false, ComplexityLow},
		{"please update the supplier record", "update_entity", false, ComplexityLow},
		{"remove the old listing", "delete_entity", false, ComplexityLow},
		{"generate a sales report", "generate_report", true, ComplexityMedium},
		{"how much stock do we have", "inventory_management", false, ComplexityLow},
		{"what time is it", "general_query", false, ComplexityLow},
		{"bulk update all listings", "update_entity", true, ComplexityHigh},
	}

	for _, tc := range cases {
		analysis := AnalyzeIntent(tc.message)
		if analysis.PrimaryIntent != tc.intent {
			t.Errorf("%q: intent %q, want %q", tc.message, analysis.PrimaryIntent, tc.intent)
		}
		if analysis.RequiresPlanning != tc.planning {
			t.Errorf("%q: planning %v, want %v", tc.message, analysis.RequiresPlanning, tc.planning)
		}
		if analysis.Complexity != tc.level {
			t.Errorf("%q: complexity %q, want %q", tc.message, analysis.Complexity, tc.level)
		}
	}
}

func TestAnalyzeIntentExtractsEntities(t *testing.T) {
	analysis := AnalyzeIntent("create product widget for supplier acme")
	if analysis.Entities["product"] != "widget" {
		t.Fatalf("product entity: %q", analysis.Entities["product"])
	}
	if analysis.Entities["supplier"] != "acme" {
		t.Fatalf("supplier entity: %q", analysis.Entities["supplier"])
	}
}

func hasIssue(issues []ValidationIssue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}
