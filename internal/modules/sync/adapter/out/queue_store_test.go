package out

import (
	"context"
	"os"
	"testing"

	"leaflog/internal/modules/sync/domain"
)

func TestFileQueueStoreReplaceSwapsInOneStep(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := NewFileQueueStore(dir)
	ctx := context.Background()

	for _, id := range []string{"q1", "q2", "q3"} {
		msg := domain.Message{ID: id, PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"}
		if err := store.Append(ctx, msg); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	tail := []domain.Message{
		{ID: "q2", PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"},
		{ID: "q3", PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"},
	}
	if err := store.Replace(ctx, tail); err != nil {
		t.Fatalf("replace: %v", err)
	}

	queued, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "q2" || queued[1].ID != "q3" {
		t.Fatalf("queued = %+v, want q2 and q3 in order", queued)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "queue.jsonl" {
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		t.Fatalf("dir contents = %v, want only the queue file", names)
	}
}

func TestFileQueueStoreReplaceWithNothingClears(t *testing.T) {
	t.Parallel()
	store := NewFileQueueStore(t.TempDir())
	ctx := context.Background()

	msg := domain.Message{ID: "q1", PairID: "pair-1", Kind: domain.KindSessionDiscarded, SessionID: "s1"}
	if err := store.Append(ctx, msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Replace(ctx, nil); err != nil {
		t.Fatalf("replace: %v", err)
	}
	queued, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queued) != 0 {
		t.Fatalf("queued = %d messages after empty replace", len(queued))
	}
}
