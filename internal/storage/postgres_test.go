package storage

import (
	"context"
	"os"
	"testing"
	"time"
)

// newPostgresTestStore connects to DIAFANO_TEST_POSTGRES_URL, a throwaway
// database with pgvector installed. Tables are emptied first.
func newPostgresTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("DIAFANO_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("DIAFANO_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, url, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	store := NewPostgresStore(pool)
	t.Cleanup(func() { store.Close() })
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE historias RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store
}

func TestPostgresUpsertStory_ExplicitIDAdvancesSequence(t *testing.T) {
	ctx := context.Background()
	store := newPostgresTestStore(t)

	id, err := store.UpsertStory(ctx, &StoryInput{ID: ptr(int64(50)), Title: "Con id", FirstReport: time.Now()})
	if err != nil || id != 50 {
		t.Fatalf("explicit id: got %d, %v", id, err)
	}
	next, err := store.UpsertStory(ctx, &StoryInput{Title: "Sin id", FirstReport: time.Now()})
	if err != nil {
		t.Fatalf("insert after explicit id: %v", err)
	}
	if next != 51 {
		t.Errorf("next id: got %d, want 51", next)
	}

	// Updating an existing id leaves the sequence where it is.
	if _, err := store.UpsertStory(ctx, &StoryInput{ID: ptr(int64(50)), Title: "Con id, editada", FirstReport: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if next, err = store.UpsertStory(ctx, &StoryInput{Title: "Otra", FirstReport: time.Now()}); err != nil || next != 52 {
		t.Errorf("after update: got %d, %v", next, err)
	}
}
