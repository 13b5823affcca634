// Package spanner implements a product store backed by Cloud Spanner.
//
// The store expects the schema in migrations/001_initial_schema.sql, where
// product IDs are assigned by the database from a sequence.
package spanner

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/store"
)

// Table and column names.
const (
	TableName = "products"

	ColID          = "id"
	ColUUID        = "uuid"
	ColName        = "p_name"
	ColDescription = "description"
	ColPrice       = "price"
)

var columns = []string{ColID, ColUUID, ColName, ColDescription, ColPrice}

// Store is a Cloud Spanner product store.
type Store struct {
	client *spanner.Client
}

// New returns a [Store] connected to the provided database, for instance
// "projects/p/instances/i/databases/d". The client honors
// SPANNER_EMULATOR_HOST.
func New(ctx context.Context, database string, opts ...option.ClientOption) (*Store, error) {
	client, err := spanner.NewClient(ctx, database, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create spanner client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close closes the underlying client.
func (s *Store) Close() {
	s.client.Close()
}

// SaveAll inserts prods in a single read-write transaction, so either all
// of them are stored or none. It returns the products with the ID assigned
// by the database.
func (s *Store) SaveAll(ctx context.Context, prods []product.Product) ([]product.Product, error) {
	var saved []product.Product

	_, err := s.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		// The function may be retried if the transaction is aborted.
		saved = make([]product.Product, 0, len(prods))

		for _, p := range prods {
			var id int64
			iter := tx.Query(ctx, insertStatement(p))
			err := iter.Do(func(r *spanner.Row) error {
				return r.Columns(&id)
			})
			if err != nil {
				return fmt.Errorf("could not insert product %v: %w", p.UUID, err)
			}

			p.ID = id
			saved = append(saved, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transaction error: %w", err)
	}

	return saved, nil
}

// FindByID returns the product with the provided ID.
func (s *Store) FindByID(ctx context.Context, id int64) (product.Product, error) {
	row, err := s.client.Single().ReadRow(ctx, TableName, spanner.Key{id}, columns)
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return product.Product{}, fmt.Errorf("product %v: %w", id, store.ErrNotFound)
		}
		return product.Product{}, fmt.Errorf("could not read product: %w", err)
	}

	return decodeRow(row)
}

// FindByUUID returns all the products with the provided UUID ordered by ID.
func (s *Store) FindByUUID(ctx context.Context, uuid string) ([]product.Product, error) {
	stmt := spanner.Statement{
		SQL: fmt.Sprintf("SELECT %v, %v, %v, %v, %v FROM %v WHERE %v = @uuid ORDER BY %v",
			ColID, ColUUID, ColName, ColDescription, ColPrice, TableName, ColUUID, ColID),
		Params: map[string]interface{}{
			"uuid": uuid,
		},
	}

	var prods []product.Product
	iter := s.client.Single().Query(ctx, stmt)
	err := iter.Do(func(r *spanner.Row) error {
		p, err := decodeRow(r)
		if err != nil {
			return err
		}
		prods = append(prods, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not query products: %w", err)
	}

	return prods, nil
}

// insertStatement returns the DML statement that inserts p and returns its
// ID.
func insertStatement(p product.Product) spanner.Statement {
	return spanner.Statement{
		SQL: fmt.Sprintf("INSERT INTO %v (%v, %v, %v, %v) VALUES (@uuid, @name, @description, @price) THEN RETURN %v",
			TableName, ColUUID, ColName, ColDescription, ColPrice, ColID),
		Params: map[string]interface{}{
			"uuid":        p.UUID,
			"name":        p.Name,
			"description": p.Description,
			"price":       p.Price,
		},
	}
}

func decodeRow(r *spanner.Row) (product.Product, error) {
	var (
		p           product.Product
		name        spanner.NullString
		description spanner.NullString
		price       spanner.NullFloat64
	)

	if err := r.Columns(&p.ID, &p.UUID, &name, &description, &price); err != nil {
		return product.Product{}, fmt.Errorf("could not decode row: %w", err)
	}
	if p.UUID == "" {
		return product.Product{}, errors.New("product without uuid")
	}

	p.Name = name.StringVal
	p.Description = description.StringVal
	p.Price = price.Float64
	return p, nil
}
