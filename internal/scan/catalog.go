package scan

import (
	"slices"
	"sync"

	"github.com/erazemk/stockscan/internal/model"
)

// Catalog is the in-memory product and shelf list scans are resolved against.
// It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	products []model.Product
	shelves  []model.Shelf
}

// NewCatalog returns a catalog holding copies of the given lists.
func NewCatalog(products []model.Product, shelves []model.Shelf) *Catalog {
	c := &Catalog{}
	c.Replace(products, shelves)
	return c
}

// Replace swaps the whole catalog, e.g. after stock levels changed.
func (c *Catalog) Replace(products []model.Product, shelves []model.Shelf) {
	p := append([]model.Product(nil), products...)
	s := append([]model.Shelf(nil), shelves...)

	c.mu.Lock()
	c.products = p
	c.shelves = s
	c.mu.Unlock()
}

// Lookup resolves a scanned value by barcode first, then by product code.
func (c *Catalog) Lookup(value string) (*model.Product, bool) {
	if value == "" {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.products {
		if c.products[i].Barcode == value {
			p := c.products[i]
			return &p, true
		}
	}
	for i := range c.products {
		if c.products[i].Code == value {
			p := c.products[i]
			return &p, true
		}
	}
	return nil, false
}

// Add inserts a product or replaces the one with the same ID.
func (c *Catalog) Add(p model.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.products {
		if c.products[i].ID == p.ID {
			c.products[i] = p
			return
		}
	}
	c.products = append(c.products, p)
}

// Remove drops the product with the given ID.
func (c *Catalog) Remove(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = slices.DeleteFunc(c.products, func(p model.Product) bool { return p.ID == id })
}

// PutShelf inserts a shelf or replaces the one with the same ID.
func (c *Catalog) PutShelf(s model.Shelf) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.shelves {
		if c.shelves[i].ID == s.ID {
			c.shelves[i] = s
			return
		}
	}
	c.shelves = append(c.shelves, s)
}

// RemoveShelf drops the shelf with the given ID.
func (c *Catalog) RemoveShelf(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shelves = slices.DeleteFunc(c.shelves, func(s model.Shelf) bool { return s.ID == id })
}

// Shelf returns the shelf with the given ID.
func (c *Catalog) Shelf(id int64) (*model.Shelf, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.shelves {
		if c.shelves[i].ID == id {
			s := c.shelves[i]
			return &s, true
		}
	}
	return nil, false
}

// Products returns a copy of the product list.
func (c *Catalog) Products() []model.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Product(nil), c.products...)
}

// Shelves returns a copy of the shelf list.
func (c *Catalog) Shelves() []model.Shelf {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Shelf(nil), c.shelves...)
}
