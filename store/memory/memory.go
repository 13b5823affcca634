// Package memory implements an in-memory product store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/store"
)

// Store is an in-memory product store. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	prods  []product.Product
	nextID int64
	fail   error
}

// New returns an empty [Store].
func New() *Store {
	return &Store{nextID: 1}
}

// SaveAll stores prods and returns them with their ID assigned.
func (s *Store) SaveAll(ctx context.Context, prods []product.Product) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}

	saved := make([]product.Product, len(prods))
	for i, p := range prods {
		p.ID = s.nextID
		s.nextID++
		saved[i] = p
	}
	s.prods = append(s.prods, saved...)

	return saved, nil
}

// SetFailure makes every following call to SaveAll fail with err. A nil
// err restores normal operation.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fail = err
}

// FindByID returns the product with the provided ID.
func (s *Store) FindByID(ctx context.Context, id int64) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prods {
		if p.ID == id {
			return p, nil
		}
	}
	return product.Product{}, fmt.Errorf("product %v: %w", id, store.ErrNotFound)
}

// All returns all the stored products in insertion order.
func (s *Store) All() []product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]product.Product(nil), s.prods...)
}
