package planner

import "time"

const defaultStepEstimate = 5 * time.Second

var defaultRetry = RetryPolicy{MaxRetries: 1, Backoff: time.Second}

// decomposeTask maps a classified intent to its fixed step template.
// Templates are written in dependency order so the list order of a
// valid plan is always an executable order.
func decomposeTask(analysis IntentAnalysis) []PlanStep {
	switch analysis.PrimaryIntent {
	case "create_entity":
		return []PlanStep{
			newStep("validate_input", "Validate input data", "", nil, 1),
			newStep("check_permissions", "Check user permissions", "", []string{"validate_input"}, 2),
			newStep("create_entity", "Create the entity", suggestedTool(analysis, 0), []string{"check_permissions"}, 3),
			newStep("verify_creation", "Verify entity was created successfully", "query_entity", []string{"create_entity"}, 4),
		}
	case "update_entity":
		return []PlanStep{
			newStep("find_entity", "Find existing entity", "query_entity", nil, 1),
			newStep("validate_update", "Validate update data", "", []string{"find_entity"}, 2),
			newStep("update_entity", "Update the entity", suggestedTool(analysis, 0), []string{"validate_update"}, 3),
			newStep("verify_update", "Verify entity was updated", "query_entity", []string{"update_entity"}, 4),
		}
	case "generate_report":
		return []PlanStep{
			newStep("gather_data", "Gather required data", "query_analytics", nil, 1),
			newStep("process_data", "Process and analyze data", "", []string{"gather_data"}, 2),
			newStep("format_report", "Format report output", "", []string{"process_data"}, 3),
			newStep("validate_report", "Validate report completeness", "", []string{"format_report"}, 4),
		}
	case "inventory_management":
		return []PlanStep{
			newStep("check_current_stock", "Check current inventory levels", "check_inventory", nil, 1),
			newStep("analyze_demand", "Analyze demand patterns", "query_analytics", []string{"check_current_stock"}, 2),
			newStep("calculate_reorder", "Calculate reorder quantities", "", []string{"analyze_demand"}, 3),
			newStep("update_inventory", "Update inventory records", "update_stock", []string{"calculate_reorder"}, 4),
		}
	default:
		return []PlanStep{
			newStep("execute_query", "Execute user request", suggestedTool(analysis, 0), nil, 1),
		}
	}
}

func newStep(id, description, tool string, dependsOn []string, priority int) PlanStep {
	return PlanStep{
		ID:                id,
		Description:       description,
		Tool:              tool,
		Arguments:         map[string]any{},
		DependsOn:         dependsOn,
		EstimatedDuration: defaultStepEstimate,
		Priority:          priority,
		Retry:             defaultRetry,
	}
}

func suggestedTool(analysis IntentAnalysis, i int) string {
	if i < len(analysis.SuggestedTools) {
		return analysis.SuggestedTools[i]
	}
	return ""
}

// generateRollback derives rollback steps from a plan: the tool-bound
// steps reversed, each renamed and pointed at the matching
// rollback_<tool> tool. Rollback tools are looked up only at rollback
// time, never during plan validation, so plans stay valid even when no
// compensating tool is registered.
func generateRollback(steps []PlanStep) []PlanStep {
	var rollback []PlanStep
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if step.Tool == "" {
			continue
		}
		rollback = append(rollback, newStep(
			"rollback_"+step.ID,
			"Rollback "+step.Description,
			"rollback_"+step.Tool,
			nil,
			1,
		))
	}
	return rollback
}

func estimateTotal(steps []PlanStep) time.Duration {
	var total time.Duration
	for _, step := range steps {
		if step.EstimatedDuration > 0 {
			total += step.EstimatedDuration
		} else {
			total += defaultStepEstimate
		}
	}
	return total
}
