package vocab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

type mockStore struct {
	colors []string
	types  []string
	err    error
	calls  atomic.Int32
}

func (m *mockStore) TagValues(_ context.Context, field string) ([]string, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if field == "colors" {
		return m.colors, nil
	}
	return m.types, nil
}

func TestVocabulary_LazyFirstFetch(t *testing.T) {
	store := &mockStore{colors: []string{"Black", "Navy"}, types: []string{"Hoodie"}}
	cache := New(store, time.Minute, zap.NewNop())

	v := cache.Vocabulary(context.Background())

	if !v.HasColor("black") || !v.HasColor("navy") {
		t.Errorf("expected lowercased colors in vocabulary, got %v", v.Colors)
	}
	if !v.HasType("hoodie") {
		t.Errorf("expected lowercased type in vocabulary, got %v", v.Types)
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("expected 2 store calls (colors + types), got %d", got)
	}
}

func TestVocabulary_FreshSnapshotNotRefetched(t *testing.T) {
	store := &mockStore{colors: []string{"black"}}
	cache := New(store, time.Minute, zap.NewNop())

	cache.Vocabulary(context.Background())
	cache.Vocabulary(context.Background())

	if got := store.calls.Load(); got != 2 {
		t.Errorf("expected no refetch within TTL, got %d store calls", got)
	}
}

func TestVocabulary_StaleServedWithoutBlocking(t *testing.T) {
	store := &mockStore{colors: []string{"black"}}
	cache := New(store, time.Nanosecond, zap.NewNop())

	first := cache.Vocabulary(context.Background())
	time.Sleep(time.Millisecond)

	// Stale snapshot is returned immediately; the refresh happens in
	// the background.
	second := cache.Vocabulary(context.Background())
	if !second.HasColor("black") {
		t.Errorf("expected stale snapshot to be served, got %v", second.Colors)
	}
	_ = first
}

func TestVocabulary_RefreshFailureDegradesToEmpty(t *testing.T) {
	store := &mockStore{err: errors.New("store down")}
	cache := New(store, time.Minute, zap.NewNop())

	v := cache.Vocabulary(context.Background())

	if len(v.Colors) != 0 || len(v.Types) != 0 {
		t.Errorf("expected empty vocabulary on refresh failure, got %+v", v)
	}
}
