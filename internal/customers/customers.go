// Package customers resolves the profile and recent orders for the customer
// behind a conversation.
package customers

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"supportbot/internal/domain"
)

type record struct {
	domain.Customer `yaml:",inline"`
	Orders          []domain.Order `yaml:"orders"`
}

type directoryFile struct {
	Customers []record `yaml:"customers"`
}

// Directory is a read-only customer lookup seeded from YAML.
type Directory struct {
	mu        sync.RWMutex
	customers map[string]domain.Customer
	orders    map[string][]domain.Order
}

func NewDirectory() *Directory {
	return &Directory{
		customers: make(map[string]domain.Customer),
		orders:    make(map[string][]domain.Order),
	}
}

// LoadFile reads a customers YAML file into a new directory.
func LoadFile(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read customers: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse customers yaml: %w", err)
	}
	d := NewDirectory()
	for _, r := range f.Customers {
		if r.ID == "" {
			return nil, fmt.Errorf("customer %q has no id", r.Name)
		}
		d.Add(r.Customer, r.Orders...)
	}
	return d, nil
}

// Add registers a customer and their orders. Orders are kept newest first.
func (d *Directory) Add(c domain.Customer, orders ...domain.Order) {
	sorted := append([]domain.Order(nil), orders...)
	for i := range sorted {
		if sorted[i].CustomerID == "" {
			sorted[i].CustomerID = c.ID
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[c.ID] = c
	d.orders[c.ID] = sorted
}

func (d *Directory) Lookup(id string) (domain.Customer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.customers[id]
	return c, ok
}

// Context returns the customer context for conv. Customers not in the
// directory are described from the conversation itself, with no orders.
func (d *Directory) Context(conv domain.Conversation) *domain.CustomerContext {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.customers[conv.CustomerID]
	if !ok {
		c = domain.Customer{
			ID:        conv.CustomerID,
			Name:      conv.CustomerName,
			Email:     conv.CustomerEmail,
			CreatedAt: conv.CreatedAt,
		}
	}
	orders := append([]domain.Order{}, d.orders[conv.CustomerID]...)
	return &domain.CustomerContext{Customer: c, RecentOrders: orders}
}
