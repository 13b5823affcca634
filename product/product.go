// Package product contains the product models exchanged through the stream
// and persisted by the ingestor, and the mapping between them.
package product

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProduct is returned by [Map] when a payload cannot be converted
// into a [Product].
var ErrInvalidProduct = errors.New("invalid product")

// Payload is the product representation transferred through the stream.
type Payload struct {
	UUID        string  `json:"uuid"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// String returns a readable representation of the payload used in logs.
func (p Payload) String() string {
	return fmt.Sprintf("Payload(uuid=%v, name=%v, description=%v, price=%v)", p.UUID, p.Name, p.Description, p.Price)
}

// Product is the persisted product. ID is assigned by the store and is zero
// until the product is saved.
type Product struct {
	ID          int64
	UUID        string
	Name        string
	Description string
	Price       float64
}

// Map converts a payload into a product ready to be persisted.
func Map(p Payload) (Product, error) {
	if p.UUID == "" {
		return Product{}, fmt.Errorf("%w: missing uuid", ErrInvalidProduct)
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
		return Product{}, fmt.Errorf("%w: price of %v is not a number", ErrInvalidProduct, p.UUID)
	}

	prod := Product{
		UUID:        p.UUID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
	}
	return prod, nil
}

// UUIDs returns the external identifiers of prods, in order.
func UUIDs(prods []Product) []string {
	uuids := make([]string, 0, len(prods))
	for _, p := range prods {
		uuids = append(uuids, p.UUID)
	}
	return uuids
}
