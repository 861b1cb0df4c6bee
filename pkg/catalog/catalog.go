// Package catalog supplies the product descriptors the cart is filled from.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"carecart/pkg/cart"
)

// Catalog is an immutable product table. It is safe for concurrent use.
type Catalog struct {
	byID     map[int64]cart.Product
	products []cart.Product
}

// DefaultProducts is the pharmacy assortment served when the configuration lists none.
func DefaultProducts() []cart.Product {
	return []cart.Product{
		{ID: 1, Name: "Paracetamol 500mg", UnitPrice: 250, Unit: "box of 16", Category: "pain-relief"},
		{ID: 2, Name: "Ibuprofen 400mg", UnitPrice: 320, Unit: "box of 20", Category: "pain-relief"},
		{ID: 3, Name: "Vitamin C 1000mg", UnitPrice: 430, Unit: "tube of 20", Category: "vitamins"},
		{ID: 4, Name: "Sterile gauze pads", UnitPrice: 180, Unit: "pack of 10", Category: "first-aid"},
		{ID: 5, Name: "Digital thermometer", UnitPrice: 1200, Unit: "piece", Category: "devices"},
		{ID: 6, Name: "Oral rehydration salts", UnitPrice: 150, Unit: "sachet", Category: "digestive"},
	}
}

// New validates the products. Ids must be unique and positive; prices must not be negative.
func New(products []cart.Product) (*Catalog, error) {
	c := &Catalog{byID: make(map[int64]cart.Product, len(products))}
	for _, p := range products {
		if p.ID <= 0 {
			return nil, fmt.Errorf("product %q: id must be positive", p.Name)
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %d: name is required", p.ID)
		}
		if p.UnitPrice < 0 {
			return nil, fmt.Errorf("product %d: unit price must not be negative", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("product %d listed twice", p.ID)
		}
		c.byID[p.ID] = p
		c.products = append(c.products, p)
	}
	sort.Slice(c.products, func(i, j int) bool { return c.products[i].ID < c.products[j].ID })
	return c, nil
}

// Lookup returns the product with the given id.
func (c *Catalog) Lookup(id int64) (cart.Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return cart.Product{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return p, nil
}

// List returns every product ordered by id, optionally restricted to one category.
func (c *Catalog) List(category string) []cart.Product {
	out := make([]cart.Product, 0, len(c.products))
	for _, p := range c.products {
		if category == "" || p.Category == category {
			out = append(out, p)
		}
	}
	return out
}
