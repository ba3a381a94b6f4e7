package planner

import "fmt"

// ToolCatalog is the registry surface the planner needs: tool
// existence checks during plan validation.
type ToolCatalog interface {
	Has(name string) bool
}

// ValidatePlan checks a plan's dependency graph and tool bindings.
// Circular dependencies, references to unknown steps, and unknown
// tools are errors; steps not grounded in a zero-dependency root are
// warnings. Rollback steps are not validated here.
func ValidatePlan(plan *ExecutionPlan, catalog ToolCatalog) ValidationResult {
	var result ValidationResult

	if hasCycle(plan.Steps) {
		result.Errors = append(result.Errors, ValidationIssue{
			Code:    CodeCircularDependency,
			Message: "plan contains circular dependencies between steps",
		})
	}

	ids := make(map[string]bool, len(plan.Steps))
	for _, step := range plan.Steps {
		ids[step.ID] = true
	}

	for _, step := range plan.Steps {
		if step.Tool != "" && !catalog.Has(step.Tool) {
			result.Errors = append(result.Errors, ValidationIssue{
				StepID:  step.ID,
				Code:    CodeUnknownTool,
				Message: fmt.Sprintf("tool %q not found in registry", step.Tool),
			})
		}
		for _, dep := range step.DependsOn {
			if !ids[dep] {
				result.Errors = append(result.Errors, ValidationIssue{
					StepID:  step.ID,
					Code:    CodeInvalidDependency,
					Message: fmt.Sprintf("step %q depends on non-existent step %q", step.ID, dep),
				})
			}
		}
	}

	reachable := reachableSteps(plan.Steps)
	for _, step := range plan.Steps {
		if !reachable[step.ID] {
			result.Warnings = append(result.Warnings, ValidationIssue{
				StepID:  step.ID,
				Code:    CodeUnreachableStep,
				Message: fmt.Sprintf("step %q may never execute due to dependency issues", step.ID),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// hasCycle runs DFS with a recursion stack over the dependency edges.
func hasCycle(steps []PlanStep) bool {
	byID := make(map[string]*PlanStep, len(steps))
	for i := range steps {
		byID[steps[i].ID] = &steps[i]
	}

	visited := map[string]bool{}
	inStack := map[string]bool{}

	var visit func(id string) bool
	visit = func(id string) bool {
		if inStack[id] {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		inStack[id] = true
		if step := byID[id]; step != nil {
			for _, dep := range step.DependsOn {
				if visit(dep) {
					return true
				}
			}
		}
		inStack[id] = false
		return false
	}

	for _, step := range steps {
		if visit(step.ID) {
			return true
		}
	}
	return false
}

// reachableSteps marks every step whose dependency chain is fully
// grounded in zero-dependency roots. Steps caught in a cycle or
// depending on a missing step never become reachable.
func reachableSteps(steps []PlanStep) map[string]bool {
	reachable := make(map[string]bool, len(steps))
	for {
		changed := false
		for _, step := range steps {
			if reachable[step.ID] {
				continue
			}
			grounded := true
			for _, dep := range step.DependsOn {
				if !reachable[dep] {
					grounded = false
					break
				}
			}
			if grounded {
				reachable[step.ID] = true
				changed = true
			}
		}
		if !changed {
			return reachable
		}
	}
}
