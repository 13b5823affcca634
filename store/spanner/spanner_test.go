package spanner

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/store"
)

const (
	testProduct     = "Test Product"
	testDescription = "Test Description"
	testPrice       = 10.0
)

// TestInsertStatement verifies the DML used to insert a product.
func TestInsertStatement(t *testing.T) {
	p := product.Product{
		UUID:        "1-2-3-4",
		Name:        testProduct,
		Description: testDescription,
		Price:       testPrice,
	}

	stmt := insertStatement(p)

	assert.True(t, strings.HasPrefix(stmt.SQL, "INSERT INTO products (uuid, p_name, description, price)"))
	assert.True(t, strings.HasSuffix(stmt.SQL, "THEN RETURN id"))

	want := map[string]interface{}{
		"uuid":        "1-2-3-4",
		"name":        testProduct,
		"description": testDescription,
		"price":       testPrice,
	}
	assert.Equal(t, want, stmt.Params)

	// Every parameter must be referenced by the statement.
	for k := range stmt.Params {
		assert.Contains(t, stmt.SQL, "@"+k)
	}
}

// newTestStore returns a store connected to the Spanner emulator. The test
// is skipped if the emulator is not configured.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db := os.Getenv("SPANNER_DATABASE")
	if os.Getenv("SPANNER_EMULATOR_HOST") == "" || db == "" {
		t.Skip("SPANNER_EMULATOR_HOST and SPANNER_DATABASE are required")
	}

	s, err := New(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

// TestSaveAndFind verifies that a saved product is read back unchanged.
func TestSaveAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := product.Product{
		UUID:        uuid.NewString(),
		Name:        testProduct,
		Description: testDescription,
		Price:       testPrice,
	}

	saved, err := s.SaveAll(ctx, []product.Product{p})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.NotZero(t, saved[0].ID)

	got, err := s.FindByID(ctx, saved[0].ID)
	require.NoError(t, err)

	assert.Equal(t, saved[0].ID, got.ID)
	assert.Equal(t, p.UUID, got.UUID)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Description, got.Description)
	assert.Equal(t, p.Price, got.Price)
}

// TestSaveAllDuplicatedUUID verifies that products are not deduplicated.
func TestSaveAllDuplicatedUUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := product.Product{UUID: uuid.NewString(), Name: testProduct, Price: testPrice}

	saved, err := s.SaveAll(ctx, []product.Product{p, p})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)

	got, err := s.FindByUUID(ctx, p.UUID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByID(context.Background(), -1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
