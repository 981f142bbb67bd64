package out

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leaflog/internal/modules/sync/domain"
	syncout "leaflog/internal/modules/sync/port/out"
)

func TestFileActivityStoreTailReturnsLastMatches(t *testing.T) {
	t.Parallel()
	store := NewFileActivityStore(t.TempDir())
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		kind := domain.ActivitySent
		if i%2 == 1 {
			kind = domain.ActivityQueued
		}
		event := domain.ActivityEvent{
			ID:         fmt.Sprintf("e%d", i),
			Kind:       kind,
			Detail:     fmt.Sprintf("event %d", i),
			OccurredAt: at.Add(time.Duration(i) * time.Second),
		}
		if err := store.Append(ctx, event); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	tail, err := store.Tail(ctx, syncout.ActivityQuery{Limit: 3})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tail) != 3 || tail[0].ID != "e2" || tail[2].ID != "e4" {
		t.Fatalf("tail = %+v, want the last three in file order", tail)
	}

	sent, err := store.Tail(ctx, syncout.ActivityQuery{Limit: 10, Kind: domain.ActivitySent})
	if err != nil {
		t.Fatalf("filtered tail: %v", err)
	}
	if len(sent) != 3 {
		t.Fatalf("filtered tail = %d events, want the 3 sent entries", len(sent))
	}
	for _, event := range sent {
		if event.Kind != domain.ActivitySent {
			t.Fatalf("filter leaked %s", event.Kind)
		}
	}
}

func TestFileActivityStoreTailOnMissingLogIsEmpty(t *testing.T) {
	t.Parallel()
	store := NewFileActivityStore(t.TempDir())
	tail, err := store.Tail(context.Background(), syncout.ActivityQuery{})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(tail) != 0 {
		t.Fatalf("tail = %d events from a missing log", len(tail))
	}
}
