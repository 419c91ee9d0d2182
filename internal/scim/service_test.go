package scim

import (
	"context"
	"testing"

	"github.com/ad-scim/bridge/internal/cache"
)

// fakeStore is a minimal in-memory cache.Store double, just enough to
// drive Service without a database.
type fakeStore struct {
	pageColumn, pageOp, pageValue string
	pageHasFilter                bool
	rows                         []cache.Row
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*cache.Row, error) {
	return nil, cache.ErrNotFound
}
func (f *fakeStore) FindBySam(ctx context.Context, sam string) (*cache.Row, error) {
	return nil, cache.ErrNotFound
}
func (f *fakeStore) Insert(ctx context.Context, row cache.Row) error { return nil }
func (f *fakeStore) Update(ctx context.Context, id string, fields cache.Fields) error {
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeStore) Page(ctx context.Context, column, op, value string, hasFilter bool, offset, limit int) ([]cache.Row, int, error) {
	f.pageColumn, f.pageOp, f.pageValue, f.pageHasFilter = column, op, value, hasFilter
	return f.rows, len(f.rows), nil
}

func TestListNormalizesUserNameFilterToStoredSam(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, "", "", "https://bridge.example.com", nil)

	_, apiErr := svc.List(context.Background(), `userName eq "x@y"`, 1, 10)
	if apiErr != nil {
		t.Fatalf("unexpected error: %+v", apiErr)
	}

	if !store.pageHasFilter {
		t.Fatal("expected filter to be recognized")
	}
	if store.pageColumn != "sam_account_name" {
		t.Fatalf("expected sam_account_name column, got %q", store.pageColumn)
	}
	if store.pageValue != "x" {
		t.Fatalf("expected filter value normalized to computeSam(\"x@y\") = %q, got %q", "x", store.pageValue)
	}
}

func TestListLeavesNonSamFilterValueUntouched(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil, "", "", "https://bridge.example.com", nil)

	_, apiErr := svc.List(context.Background(), `id eq "abc-123"`, 1, 10)
	if apiErr != nil {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if store.pageColumn != "id" {
		t.Fatalf("expected id column, got %q", store.pageColumn)
	}
	if store.pageValue != "abc-123" {
		t.Fatalf("expected id filter value untouched, got %q", store.pageValue)
	}
}
