package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-ai/halcyon/internal/observability"
	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// StepExecutor is the executor surface the planner drives. Satisfied
// by tools.Executor.
type StepExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage, execCtx models.ExecutionContext, opts tools.ExecOptions) *models.ToolResult
}

// Config wires a Planner's collaborators. Metrics may be nil.
type Config struct {
	Catalog  ToolCatalog
	Executor StepExecutor
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Planner creates and executes multi-step plans.
type Planner struct {
	catalog  ToolCatalog
	executor StepExecutor
	metrics  *observability.Metrics
	logger   *slog.Logger
}

func New(cfg Config) *Planner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		catalog:  cfg.Catalog,
		executor: cfg.Executor,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// CreatePlan classifies the intent, expands it into a step template,
// derives rollback steps, and validates the result. Validation errors
// fail creation with a *PlanValidationError carrying every issue.
func (p *Planner) CreatePlan(_ context.Context, intent string, session *models.Session) (*ExecutionPlan, error) {
	analysis := AnalyzeIntent(intent)
	steps := decomposeTask(analysis)

	plan := &ExecutionPlan{
		ID:                uuid.NewString(),
		Intent:            intent,
		Analysis:          analysis,
		Steps:             steps,
		Rollback:          generateRollback(steps),
		CreatedAt:         time.Now(),
		EstimatedDuration: estimateTotal(steps),
	}
	if session != nil {
		plan.SessionID = session.ID
	}

	validation := ValidatePlan(plan, p.catalog)
	for _, w := range validation.Warnings {
		p.logger.Warn("plan validation warning",
			"plan_id", plan.ID, "step", w.StepID, "code", w.Code, "message", w.Message)
	}
	if !validation.Valid {
		return nil, &PlanValidationError{Issues: validation.Errors}
	}
	return plan, nil
}

// ExecutePlan runs the plan's steps in list order. Step failures are
// retried per the step's policy, then routed through the recovery
// policy. The returned result is always populated; the error is
// non-nil only when a step aborted the plan, after a best-effort
// rollback.
func (p *Planner) ExecutePlan(ctx context.Context, plan *ExecutionPlan, execCtx models.ExecutionContext) (*PlanExecutionResult, error) {
	start := time.Now()
	result := &PlanExecutionResult{PlanID: plan.ID}
	var abortErr error

	for _, step := range plan.Steps {
		stepResult := p.executeStep(ctx, step, execCtx)
		if stepResult.Success {
			result.Completed = append(result.Completed, stepResult)
			continue
		}
		result.Failed = append(result.Failed, stepResult)

		action := recoveryFor(step)
		p.logger.Warn("plan step failed",
			"plan_id", plan.ID, "step", step.ID, "attempts", stepResult.Attempts, "recovery", string(action))

		switch action {
		case RecoverySkip:
			continue
		case RecoveryRollback:
			if !result.RollbackExecuted {
				result.RollbackResults = p.executeRollback(ctx, plan, execCtx)
				result.RollbackExecuted = true
			}
		default:
			// Abort: attempt rollback once, then surface the failure.
			if !result.RollbackExecuted {
				result.RollbackResults = p.executeRollback(ctx, plan, execCtx)
				result.RollbackExecuted = true
			}
			if stepResult.Error != nil {
				abortErr = fmt.Errorf("step %s aborted plan: %s", step.ID, stepResult.Error.Message)
			} else {
				abortErr = fmt.Errorf("step %s aborted plan", step.ID)
			}
		}
		if abortErr != nil {
			break
		}
	}

	result.Success = len(result.Failed) == 0 && abortErr == nil
	result.Duration = time.Since(start)
	if p.metrics != nil {
		p.metrics.PlanExecuted(result.Success, result.RollbackExecuted)
	}
	return result, abortErr
}

// executeStep runs one step with its retry policy. Steps without a
// tool binding succeed trivially.
func (p *Planner) executeStep(ctx context.Context, step PlanStep, execCtx models.ExecutionContext) StepResult {
	start := time.Now()
	result := StepResult{StepID: step.ID, Tool: step.Tool}

	if step.Tool == "" {
		result.Success = true
		result.Attempts = 1
		result.Output = map[string]any{"status": "completed", "step_id": step.ID}
		result.Duration = time.Since(start)
		return result
	}

	args, err := json.Marshal(step.Arguments)
	if err != nil {
		result.Attempts = 1
		result.Error = &models.ToolError{Code: tools.CodeValidationError, Message: err.Error()}
		result.Duration = time.Since(start)
		return result
	}

	attempts := step.Retry.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		toolResult := p.executor.Execute(ctx, step.Tool, args, execCtx, tools.ExecOptions{})
		if toolResult.Success {
			result.Success = true
			result.Output = toolResult.Data
			break
		}
		result.Error = toolResult.Error

		if attempt < attempts {
			select {
			case <-ctx.Done():
				result.Duration = time.Since(start)
				return result
			case <-time.After(step.Retry.Backoff):
			}
		}
	}
	result.Duration = time.Since(start)
	return result
}

// executeRollback walks the rollback steps best-effort: a failing
// rollback step is logged and the walk continues.
func (p *Planner) executeRollback(ctx context.Context, plan *ExecutionPlan, execCtx models.ExecutionContext) []StepResult {
	if len(plan.Rollback) == 0 {
		return nil
	}
	p.logger.Info("executing rollback", "plan_id", plan.ID, "steps", len(plan.Rollback))

	results := make([]StepResult, 0, len(plan.Rollback))
	for _, step := range plan.Rollback {
		stepResult := p.executeStep(ctx, step, execCtx)
		if !stepResult.Success {
			p.logger.Error("rollback step failed", "plan_id", plan.ID, "step", step.ID)
		}
		results = append(results, stepResult)
	}
	return results
}

// recoveryFor decides what to do after a step exhausts its retries.
// Guard steps force rollback, observational steps are skippable, and
// everything else aborts the plan.
func recoveryFor(step PlanStep) RecoveryAction {
	switch {
	case strings.Contains(step.ID, "validate"), strings.Contains(step.ID, "check_permissions"):
		return RecoveryRollback
	case strings.Contains(step.ID, "verify"), strings.Contains(step.ID, "log"):
		return RecoverySkip
	default:
		return RecoveryAbort
	}
}
