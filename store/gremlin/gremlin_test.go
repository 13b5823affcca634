package gremlin

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adevinta/product-ingestor/product"
	"github.com/adevinta/product-ingestor/store"
)

const (
	gremlinEndpoint = "ws://127.0.0.1:8182/gremlin"
	gremlinAddr     = "127.0.0.1:8182"
)

func resetGraph() error {
	conn, err := gremlingo.NewDriverRemoteConnection(gremlinEndpoint, func(settings *gremlingo.DriverRemoteConnectionSettings) {
		settings.LogVerbosity = gremlingo.Off
	})
	if err != nil {
		return fmt.Errorf("could not connect to gremlin-server: %w", err)
	}
	defer conn.Close()

	g := gremlingo.Traversal_().WithRemote(conn)

	return <-g.V().HasLabel(Label).Drop().Iterate()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	c, err := net.DialTimeout("tcp", gremlinAddr, time.Second)
	if err != nil {
		t.Skipf("gremlin-server is not available: %v", err)
	}
	c.Close()

	if err := resetGraph(); err != nil {
		t.Fatalf("error resetting graph: %v", err)
	}

	s, err := New(gremlinEndpoint)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func TestSaveAllAndFindByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prods := []product.Product{
		{UUID: "1", Name: "TestProduct", Description: "Test Description", Price: 1},
		{UUID: "1", Name: "TestProduct", Description: "Test Description", Price: 1},
	}

	saved, err := s.SaveAll(ctx, prods)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)

	for _, want := range saved {
		got, err := s.FindByID(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByID(context.Background(), -1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecodeProduct(t *testing.T) {
	tests := []struct {
		name    string
		v       interface{}
		want    product.Product
		wantErr bool
	}{
		{
			name: "complete",
			v: map[interface{}]interface{}{
				"id":            int64(7),
				PropUUID:        "1-2-3-4",
				PropName:        "Test Product",
				PropDescription: "Test Description",
				PropPrice:       10.5,
			},
			want: product.Product{ID: 7, UUID: "1-2-3-4", Name: "Test Product", Description: "Test Description", Price: 10.5},
		},
		{
			name: "int32 id and float32 price",
			v: map[interface{}]interface{}{
				"id":      int32(3),
				PropUUID:  "1",
				PropPrice: float32(2),
			},
			want: product.Product{ID: 3, UUID: "1", Price: 2},
		},
		{
			name:    "string id",
			v:       map[interface{}]interface{}{"id": "3"},
			wantErr: true,
		},
		{
			name:    "not a map",
			v:       []interface{}{1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeProduct(tt.v)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveAllCancelled(t *testing.T) {
	s := &Store{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SaveAll(ctx, []product.Product{{UUID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
}
