package affinity

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "affinity.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetReturnsNilForUnknownKey(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.Get(context.Background(), "movie-603")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for unknown key, got %+v", rec)
	}
}

func TestMergeSetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.MergeSet(ctx, "movie-603", "vidora", "alpha"); err != nil {
		t.Fatalf("merge set failed: %v", err)
	}
	rec, err := store.Get(ctx, "movie-603")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec == nil || rec.SourceID != "vidora" || rec.EmbedID != "alpha" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.UpdatedAt.IsZero() {
		t.Fatalf("expected updated timestamp set")
	}
}

func TestMergeSetKeepsEmbedOnEmptyUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.MergeSet(ctx, "episode-1-s1-e2", "vidora", "alpha"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	// A direct-stream win carries no embed; the stored hint must survive.
	if err := store.MergeSet(ctx, "episode-1-s1-e2", "kaze", ""); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	rec, err := store.Get(ctx, "episode-1-s1-e2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.SourceID != "kaze" {
		t.Fatalf("expected source updated, got %q", rec.SourceID)
	}
	if rec.EmbedID != "alpha" {
		t.Fatalf("expected embed preserved, got %q", rec.EmbedID)
	}
}

func TestMergeSetOverwritesEmbed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.MergeSet(ctx, "movie-9", "vidora", "alpha"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := store.MergeSet(ctx, "movie-9", "vidora", "beta"); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	rec, err := store.Get(ctx, "movie-9")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if rec.EmbedID != "beta" {
		t.Fatalf("expected embed overwritten, got %q", rec.EmbedID)
	}
}
