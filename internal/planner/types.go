// Package planner turns free-text intents into validated multi-step
// execution plans and drives them against the tool executor with
// retry, skip, rollback, and abort recovery.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Complexity grades how involved an intent is expected to be.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IntentAnalysis is the outcome of rule-based intent classification.
type IntentAnalysis struct {
	PrimaryIntent    string            `json:"primary_intent"`
	Confidence       float64           `json:"confidence"`
	Entities         map[string]string `json:"entities,omitempty"`
	RequiresPlanning bool              `json:"requires_planning"`
	RequiresTools    bool              `json:"requires_tools"`
	Complexity       Complexity        `json:"complexity"`
	SuggestedTools   []string          `json:"suggested_tools,omitempty"`
}

// RetryPolicy controls per-step retry behavior. Backoff is a fixed
// delay between attempts.
type RetryPolicy struct {
	MaxRetries int           `json:"max_retries"`
	Backoff    time.Duration `json:"backoff"`
}

// PlanStep is a single unit of work in a plan. A step without a tool
// binding is a bookkeeping step and always succeeds.
type PlanStep struct {
	ID                string         `json:"id"`
	Description       string         `json:"description"`
	Tool              string         `json:"tool,omitempty"`
	Arguments         map[string]any `json:"arguments,omitempty"`
	DependsOn         []string       `json:"depends_on,omitempty"`
	EstimatedDuration time.Duration  `json:"estimated_duration"`
	Priority          int            `json:"priority"`
	Retry             RetryPolicy    `json:"retry"`
}

// ExecutionPlan is a validated, ordered set of steps plus the rollback
// steps derived from them.
type ExecutionPlan struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"session_id,omitempty"`
	Intent            string         `json:"intent"`
	Analysis          IntentAnalysis `json:"analysis"`
	Steps             []PlanStep     `json:"steps"`
	Rollback          []PlanStep     `json:"rollback,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	EstimatedDuration time.Duration  `json:"estimated_duration"`
}

// RecoveryAction is the policy decision after a step exhausts its
// retries.
type RecoveryAction string

const (
	RecoveryRetry    RecoveryAction = "retry"
	RecoverySkip     RecoveryAction = "skip"
	RecoveryRollback RecoveryAction = "rollback"
	RecoveryAbort    RecoveryAction = "abort"
)

// StepResult records one step's outcome, including how many attempts
// it took.
type StepResult struct {
	StepID   string            `json:"step_id"`
	Tool     string            `json:"tool,omitempty"`
	Success  bool              `json:"success"`
	Output   any               `json:"output,omitempty"`
	Error    *models.ToolError `json:"error,omitempty"`
	Attempts int               `json:"attempts"`
	Duration time.Duration     `json:"duration"`
}

// PlanExecutionResult summarizes a full plan run. Step failures are
// contained here; only an abort surfaces an error to the caller.
type PlanExecutionResult struct {
	PlanID           string        `json:"plan_id"`
	Success          bool          `json:"success"`
	Completed        []StepResult  `json:"completed"`
	Failed           []StepResult  `json:"failed,omitempty"`
	RollbackExecuted bool          `json:"rollback_executed"`
	RollbackResults  []StepResult  `json:"rollback_results,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// Validation issue codes.
const (
	CodeCircularDependency = "CIRCULAR_DEPENDENCY"
	CodeInvalidDependency  = "INVALID_DEPENDENCY"
	CodeUnknownTool        = "TOOL_NOT_FOUND"
	CodeUnreachableStep    = "UNREACHABLE_STEP"
)

// ValidationIssue is a single finding from plan validation.
type ValidationIssue struct {
	StepID  string `json:"step_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult partitions findings into blocking errors and
// advisory warnings.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// PlanValidationError is returned when plan creation fails validation.
// It carries every blocking issue, not just the first.
type PlanValidationError struct {
	Issues []ValidationIssue
}

func (e *PlanValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("plan validation failed: %s", strings.Join(msgs, "; "))
}
