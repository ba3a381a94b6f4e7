package inventory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/internal/tools"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

func newPack(t *testing.T) (*tools.Registry, *tools.Executor, *Store) {
	t.Helper()

	registry := tools.NewRegistry()
	handlers := tools.NewHandlerRegistry()
	store := NewStore()
	store.Seed()
	if err := RegisterAll(registry, handlers, store); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	resolver := auth.NewStaticResolver(nil)
	resolver.Grant("user-1", PermRead, PermWrite, PermAdmin)

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Registry:    registry,
		Handlers:    handlers,
		Permissions: resolver,
	})
	return registry, executor, store
}

func execCtx() models.ExecutionContext {
	return models.ExecutionContext{
		OrgID:     "org-1",
		UserID:    "user-1",
		SessionID: "session-1",
	}
}

func TestSearchInventoryEndToEnd(t *testing.T) {
	_, executor, _ := newPack(t)

	result := executor.Execute(context.Background(), "searchInventory",
		json.RawMessage(`{"query":"widget","limit":10}`), execCtx(), tools.ExecOptions{})

	if !result.Success {
		t.Fatalf("expected success, got %+v", result.Error)
	}
	data, ok := result.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected payload type %T", result.Data)
	}
	items, ok := data["items"].([]Product)
	if !ok {
		t.Fatalf("unexpected items type %T", data["items"])
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 widgets, got %d", len(items))
	}

	if result.Audit.ToolName != "searchInventory" || result.Audit.ToolVersion != packVersion {
		t.Fatalf("unexpected audit identity: %+v", result.Audit)
	}
	if result.Audit.ExecutedBy != "user-1" {
		t.Fatalf("audit should name the caller, got %q", result.Audit.ExecutedBy)
	}
}

func TestCheckInventoryRequiresSKU(t *testing.T) {
	_, executor, _ := newPack(t)

	result := executor.Execute(context.Background(), "check_inventory",
		json.RawMessage(`{}`), execCtx(), tools.ExecOptions{})

	if result.Success {
		t.Fatal("expected validation failure")
	}
	if result.Error.Code != tools.CodeValidationError {
		t.Fatalf("expected %s, got %s", tools.CodeValidationError, result.Error.Code)
	}
}

func TestUpdateStockAndRollback(t *testing.T) {
	_, executor, store := newPack(t)

	result := executor.Execute(context.Background(), "update_stock",
		json.RawMessage(`{"sku":"WID-001","delta":-20}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("update_stock failed: %+v", result.Error)
	}
	p, _ := store.Get("WID-001")
	if p.OnHand != 100 {
		t.Fatalf("expected 100 on hand, got %d", p.OnHand)
	}

	result = executor.Execute(context.Background(), "rollback_update_stock",
		json.RawMessage(`{"sku":"WID-001"}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("rollback failed: %+v", result.Error)
	}
	p, _ = store.Get("WID-001")
	if p.OnHand != 120 {
		t.Fatalf("rollback should restore stock, got %d", p.OnHand)
	}
}

func TestUpdateStockRefusesNegative(t *testing.T) {
	_, executor, _ := newPack(t)

	result := executor.Execute(context.Background(), "update_stock",
		json.RawMessage(`{"sku":"GAD-001","delta":-1000}`), execCtx(), tools.ExecOptions{})
	if result.Success {
		t.Fatal("stock should not go negative")
	}
	if result.Error.Code != tools.CodeExecutionError {
		t.Fatalf("unexpected code %s", result.Error.Code)
	}
}

func TestCreateAndDeleteProduct(t *testing.T) {
	_, executor, store := newPack(t)

	result := executor.Execute(context.Background(), "create_product",
		json.RawMessage(`{"sku":"NEW-1","name":"Sprocket","unit_price":4.5}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("create_product failed: %+v", result.Error)
	}
	if _, err := store.Get("NEW-1"); err != nil {
		t.Fatalf("product should exist: %v", err)
	}

	// Duplicate SKU fails inside the handler.
	result = executor.Execute(context.Background(), "create_product",
		json.RawMessage(`{"sku":"NEW-1","name":"Sprocket"}`), execCtx(), tools.ExecOptions{})
	if result.Success {
		t.Fatal("duplicate SKU should fail")
	}

	result = executor.Execute(context.Background(), "rollback_create_product",
		json.RawMessage(`{"sku":"NEW-1"}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("rollback_create_product failed: %+v", result.Error)
	}
	if _, err := store.Get("NEW-1"); err == nil {
		t.Fatal("product should be gone after rollback")
	}
}

func TestAnalyticsFlagsReorder(t *testing.T) {
	_, executor, _ := newPack(t)

	result := executor.Execute(context.Background(), "query_analytics",
		json.RawMessage(`{}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("query_analytics failed: %+v", result.Error)
	}
	summary, ok := result.Data.(AnalyticsSummary)
	if !ok {
		t.Fatalf("unexpected payload type %T", result.Data)
	}
	if summary.Products != 3 {
		t.Fatalf("expected 3 products, got %d", summary.Products)
	}
	// WID-002 is seeded below its reorder point.
	if summary.BelowReorder != 1 || len(summary.ReorderAlerts) != 1 || summary.ReorderAlerts[0] != "WID-002" {
		t.Fatalf("unexpected reorder alerts: %+v", summary)
	}
}

func TestSupplierLifecycle(t *testing.T) {
	_, executor, _ := newPack(t)

	result := executor.Execute(context.Background(), "create_supplier",
		json.RawMessage(`{"id":"initech","name":"Initech Parts"}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("create_supplier failed: %+v", result.Error)
	}

	result = executor.Execute(context.Background(), "archive_supplier",
		json.RawMessage(`{"id":"initech"}`), execCtx(), tools.ExecOptions{})
	if !result.Success {
		t.Fatalf("archive_supplier failed: %+v", result.Error)
	}
	sup, ok := result.Data.(Supplier)
	if !ok || !sup.Archived {
		t.Fatalf("supplier should be archived: %+v", result.Data)
	}
}

func TestPackRegistersPlannerTemplateTools(t *testing.T) {
	registry, _, _ := newPack(t)

	for _, name := range []string{
		"check_inventory", "update_stock", "query_analytics", "query_entity",
		"create_product", "update_product", "delete_product",
		"create_supplier", "archive_supplier", "update_inventory", "generate_report",
	} {
		if !registry.Has(name) {
			t.Errorf("pack should register %s", name)
		}
	}
}
