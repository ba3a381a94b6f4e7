package planner

import (
	"regexp"
	"strings"
)

var (
	productPattern  = regexp.MustCompile(`(?i)products?\s+(\S+)`)
	supplierPattern = regexp.MustCompile(`(?i)suppliers?\s+(\S+)`)
)

// complexIndicators force planning regardless of the primary intent.
var complexIndicators = []string{"multiple", "batch", "bulk", "all", "every", "comprehensive"}

// AnalyzeIntent classifies a message by keyword matching. It is a
// deliberately simple rule table, not NLP.
func AnalyzeIntent(message string) IntentAnalysis {
	lower := strings.ToLower(message)

	analysis := IntentAnalysis{
		PrimaryIntent: "general_query",
		Confidence:    0.5,
		Complexity:    ComplexityLow,
		Entities:      map[string]string{},
	}

	switch {
	case containsAny(lower, "create", "add", "new"):
		analysis.PrimaryIntent = "create_entity"
		analysis.Confidence = 0.8
		analysis.RequiresTools = true
		analysis.SuggestedTools = []string{"create_product", "create_supplier"}
	case containsAny(lower, "update", "change", "modify"):
		analysis.PrimaryIntent = "update_entity"
		analysis.Confidence = 0.8
		analysis.RequiresTools = true
		analysis.SuggestedTools = []string{"update_product", "update_inventory"}
	case containsAny(lower, "delete", "remove"):
		analysis.PrimaryIntent = "delete_entity"
		analysis.Confidence = 0.8
		analysis.RequiresTools = true
		analysis.SuggestedTools = []string{"delete_product", "archive_supplier"}
	case containsAny(lower, "analyze", "report", "dashboard"):
		analysis.PrimaryIntent = "generate_report"
		analysis.Confidence = 0.8
		analysis.RequiresPlanning = true
		analysis.RequiresTools = true
		analysis.Complexity = ComplexityMedium
		analysis.SuggestedTools = []string{"query_analytics", "generate_report"}
	case containsAny(lower, "inventory", "stock", "quantity"):
		analysis.PrimaryIntent = "inventory_management"
		analysis.Confidence = 0.8
		analysis.RequiresTools = true
		analysis.SuggestedTools = []string{"check_inventory", "update_stock"}
	}

	if containsAny(lower, complexIndicators...) {
		analysis.RequiresPlanning = true
		analysis.Complexity = ComplexityHigh
	}

	if m := productPattern.FindStringSubmatch(message); m != nil {
		analysis.Entities["product"] = strings.TrimSpace(m[1])
	}
	if m := supplierPattern.FindStringSubmatch(message); m != nil {
		analysis.Entities["supplier"] = strings.TrimSpace(m[1])
	}

	return analysis
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
