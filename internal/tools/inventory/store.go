// Package inventory is the built-in tool pack: an in-memory product
// and supplier store exposed through registered tool definitions. It
// doubles as the reference wiring for external tool packs.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrSupplierNotFound = errors.New("supplier not found")
)

// Product is one stocked item.
type Product struct {
	SKU          string    `json:"sku"`
	Name         string    `json:"name"`
	Supplier     string    `json:"supplier,omitempty"`
	OnHand       int       `json:"on_hand"`
	ReorderPoint int       `json:"reorder_point"`
	UnitPrice    float64   `json:"unit_price"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Supplier is a product source.
type Supplier struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// Store is the in-memory backing state for the tool pack.
type Store struct {
	mu        sync.RWMutex
	products  map[string]*Product
	suppliers map[string]*Supplier

	// adjustments remembers stock deltas so compensating tools can
	// undo them.
	adjustments map[string]int
}

func NewStore() *Store {
	return &Store{
		products:    map[string]*Product{},
		suppliers:   map[string]*Supplier{},
		adjustments: map[string]int{},
	}
}

// Seed loads demo data. Used by the CLI and tests.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, p := range []*Product{
		{SKU: "WID-001", Name: "Widget", Supplier: "acme", OnHand: 120, ReorderPoint: 40, UnitPrice: 9.5, UpdatedAt: now},
		{SKU: "WID-002", Name: "Widget Pro", Supplier: "acme", OnHand: 18, ReorderPoint: 25, UnitPrice: 19.0, UpdatedAt: now},
		{SKU: "GAD-001", Name: "Gadget", Supplier: "globex", OnHand: 64, ReorderPoint: 20, UnitPrice: 14.25, UpdatedAt: now},
	} {
		s.products[p.SKU] = p
	}
	s.suppliers["acme"] = &Supplier{ID: "acme", Name: "Acme Components"}
	s.suppliers["globex"] = &Supplier{ID: "globex", Name: "Globex Supply"}
}

// Search returns products whose SKU or name contains the query,
// case-insensitive, sorted by SKU, capped at limit.
func (s *Store) Search(query string, limit int) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	var out []Product
	for _, p := range s.products {
		if q == "" || strings.Contains(strings.ToLower(p.SKU), q) || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Get returns one product by SKU.
func (s *Store) Get(sku string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[sku]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	return *p, nil
}

// Create adds a product; duplicate SKUs are rejected.
func (s *Store) Create(p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.products[p.SKU]; exists {
		return fmt.Errorf("product %s already exists", p.SKU)
	}
	p.UpdatedAt = time.Now()
	s.products[p.SKU] = &p
	return nil
}

// Update applies non-zero fields to an existing product.
func (s *Store) Update(sku string, name string, price float64) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	if name != "" {
		p.Name = name
	}
	if price > 0 {
		p.UnitPrice = price
	}
	p.UpdatedAt = time.Now()
	return *p, nil
}

// Delete removes a product.
func (s *Store) Delete(sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[sku]; !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	delete(s.products, sku)
	return nil
}

// AdjustStock applies a delta to on-hand stock, refusing to go
// negative, and remembers the delta so it can be compensated.
func (s *Store) AdjustStock(sku string, delta int) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[sku]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, sku)
	}
	if p.OnHand+delta < 0 {
		return Product{}, fmt.Errorf("stock for %s cannot go below zero (on hand %d, delta %d)", sku, p.OnHand, delta)
	}
	p.OnHand += delta
	p.UpdatedAt = time.Now()
	s.adjustments[sku] += delta
	return *p, nil
}

// RevertStock undoes the accumulated adjustments for one SKU.
func (s *Store) RevertStock(sku string) (Product, error) {
	s.mu.Lock()
	delta := s.adjustments[sku]
	s.mu.Unlock()
	if delta == 0 {
		return s.Get(sku)
	}
	p, err := s.AdjustStock(sku, -delta)
	if err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	s.adjustments[sku] = 0
	s.mu.Unlock()
	return p, nil
}

// CreateSupplier adds a supplier.
func (s *Store) CreateSupplier(sup Supplier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.suppliers[sup.ID]; exists {
		return fmt.Errorf("supplier %s already exists", sup.ID)
	}
	s.suppliers[sup.ID] = &sup
	return nil
}

// ArchiveSupplier marks a supplier archived.
func (s *Store) ArchiveSupplier(id string) (Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	sup.Archived = true
	return *sup, nil
}

// AnalyticsSummary aggregates store-wide stock health.
type AnalyticsSummary struct {
	Products      int      `json:"products"`
	TotalOnHand   int      `json:"total_on_hand"`
	BelowReorder  int      `json:"below_reorder"`
	StockValue    float64  `json:"stock_value"`
	ReorderAlerts []string `json:"reorder_alerts,omitempty"`
}

// Analytics computes the current stock summary.
func (s *Store) Analytics() AnalyticsSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary AnalyticsSummary
	for _, p := range s.products {
		summary.Products++
		summary.TotalOnHand += p.OnHand
		summary.StockValue += float64(p.OnHand) * p.UnitPrice
		if p.OnHand < p.ReorderPoint {
			summary.BelowReorder++
			summary.ReorderAlerts = append(summary.ReorderAlerts, p.SKU)
		}
	}
	sort.Strings(summary.ReorderAlerts)
	return summary
}
