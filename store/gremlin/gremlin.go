// Package gremlin implements a product store on top of a TinkerPop graph
// served by Gremlin Server. Every product is a vertex with label
// [Label], and the vertex ID is the product ID.
package gremlin

import (
	"context"
	"fmt"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"

	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/store"
)

// Label is the label of the product vertices.
const Label = "Product"

// Vertex property keys.
const (
	PropUUID        = "uuid"
	PropName        = "name"
	PropDescription = "description"
	PropPrice       = "price"
)

// Store is a Gremlin product store.
type Store struct {
	conn *gremlingo.DriverRemoteConnection
	g    *gremlingo.GraphTraversalSource
}

// New connects to the Gremlin Server at endpoint, for instance
// "ws://127.0.0.1:8182/gremlin".
func New(endpoint string) (*Store, error) {
	conn, err := gremlingo.NewDriverRemoteConnection(endpoint, func(settings *gremlingo.DriverRemoteConnectionSettings) {
		settings.LogVerbosity = gremlingo.Off
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to gremlin-server: %w", err)
	}

	return &Store{
		conn: conn,
		g:    gremlingo.Traversal_().WithRemote(conn),
	}, nil
}

// Close closes the connection with the server.
func (s *Store) Close() {
	s.conn.Close()
}

// SaveAll adds a vertex per product and returns the products with the ID
// of their vertex. The graph driver has no transactions, so on error some
// of the products may have been stored.
func (s *Store) SaveAll(ctx context.Context, prods []product.Product) ([]product.Product, error) {
	saved := make([]product.Product, 0, len(prods))
	for _, p := range prods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := s.g.AddV(Label).
			Property(PropUUID, p.UUID).
			Property(PropName, p.Name).
			Property(PropDescription, p.Description).
			Property(PropPrice, p.Price).
			Id().
			Next()
		if err != nil {
			return nil, fmt.Errorf("could not add product %v: %w", p.UUID, err)
		}

		id, err := toID(r.GetInterface())
		if err != nil {
			return nil, fmt.Errorf("product %v: %w", p.UUID, err)
		}

		p.ID = id
		saved = append(saved, p)
	}
	return saved, nil
}

// FindByID returns the product stored in the vertex with the provided ID.
func (s *Store) FindByID(ctx context.Context, id int64) (product.Product, error) {
	if err := ctx.Err(); err != nil {
		return product.Product{}, err
	}

	results, err := s.g.V(id).HasLabel(Label).
		Project("id", PropUUID, PropName, PropDescription, PropPrice).
		By(gremlingo.T.Id).
		By(PropUUID).
		By(PropName).
		By(PropDescription).
		By(PropPrice).
		ToList()
	if err != nil {
		return product.Product{}, fmt.Errorf("could not get product: %w", err)
	}
	if len(results) == 0 {
		return product.Product{}, fmt.Errorf("product %v: %w", id, store.ErrNotFound)
	}

	return decodeProduct(results[0].GetInterface())
}

func decodeProduct(v interface{}) (product.Product, error) {
	m, ok := v.(map[interface{}]interface{})
	if !ok {
		return product.Product{}, fmt.Errorf("unexpected result type %T", v)
	}

	id, err := toID(m["id"])
	if err != nil {
		return product.Product{}, err
	}

	p := product.Product{ID: id}
	p.UUID, _ = m[PropUUID].(string)
	p.Name, _ = m[PropName].(string)
	p.Description, _ = m[PropDescription].(string)

	switch price := m[PropPrice].(type) {
	case float64:
		p.Price = price
	case float32:
		p.Price = float64(price)
	}

	return p, nil
}

// toID converts a vertex ID into a product ID. Gremlin Server returns
// integer IDs with different widths depending on the serializer.
func toID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case int32:
		return int64(id), nil
	case int:
		return int64(id), nil
	default:
		return 0, fmt.Errorf("unsupported vertex id %v of type %T", v, v)
	}
}
