package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/arborhq/arbor/pkg/model"
)

func TestStore_GetOwnerPropagatesStoreFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT user_id FROM owner_edges").
		WillReturnError(errors.New("connection refused"))

	store := NewStore(db)
	_, err = store.GetOwner(context.Background(), "node-1")
	if err == nil {
		t.Fatal("Expected error from unavailable store")
	}
	if errors.Is(err, ErrNodeNotFound) {
		t.Error("Infrastructure failure must not be reported as not-found")
	}
}

func TestStore_SetOwnerRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM owner_edges").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO owner_edges").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	store := NewStore(db)
	err = store.SetOwner(context.Background(), "node-1", model.UserID("user-2"))
	if err == nil {
		t.Fatal("Expected error when owner insert fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Transaction was not rolled back: %v", err)
	}
}

func TestStore_EmptyGrantBatchesIssueNoStoreCalls(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	ctx := context.Background()

	if err := store.AddGrants(ctx, "node-1", nil, nil); err != nil {
		t.Errorf("AddGrants with empty batches should be a no-op, got %v", err)
	}
	if err := store.RemoveGrants(ctx, "node-1", nil, nil); err != nil {
		t.Errorf("RemoveGrants with empty batches should be a no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Expected no store calls for empty batches: %v", err)
	}
}
