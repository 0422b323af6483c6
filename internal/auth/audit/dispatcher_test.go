package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/audit"
	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	block   chan struct{}
}

func (s *memSink) Write(_ context.Context, e domain.AuditEntry) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	sink := &memSink{}
	d := audit.NewDispatcher(sink, 4, slogx.Discard())

	for range 100 {
		d.Record(context.Background(), domain.AuditEntry{Type: domain.AuditLogin})
	}
	d.Close()

	require.Equal(t, 100, sink.len())
	for _, e := range sink.entries {
		require.NotEmpty(t, e.ID)
		require.False(t, e.CreatedAt.IsZero())
	}

	// Records after close are still written.
	d.Record(context.Background(), domain.AuditEntry{Type: domain.AuditLogout})
	require.Equal(t, 101, sink.len())
	d.Close()
}

func TestDispatcherDoesNotDropWhenCallerGivesUp(t *testing.T) {
	sink := &memSink{block: make(chan struct{})}
	d := audit.NewDispatcher(sink, 1, slogx.Discard())

	// One entry in the writer, one in the buffer, the next has nowhere to go.
	d.Record(context.Background(), domain.AuditEntry{Type: domain.AuditLogin})
	d.Record(context.Background(), domain.AuditEntry{Type: domain.AuditLogin})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go d.Record(ctx, domain.AuditEntry{Type: domain.AuditLogin})

	close(sink.block)
	d.Close()

	require.Eventually(t, func() bool { return sink.len() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherCountsFailures(t *testing.T) {
	d := audit.NewDispatcher(audit.SinkFunc(func(context.Context, domain.AuditEntry) error {
		return errors.New("disk full")
	}), 1, slogx.Discard())

	d.Record(context.Background(), domain.AuditEntry{Type: domain.AuditLogin})
	d.Close()
	require.EqualValues(t, 1, d.Failed())
}

func TestStoreSink(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	d := audit.NewDispatcher(audit.StoreSink{Store: s}, 8, slogx.Discard())
	d.Record(ctx, domain.AuditEntry{
		Type:    domain.AuditLogin,
		UserID:  "u1",
		IP:      "10.0.0.1",
		Payload: map[string]any{"method": "password", "outcome": "success"},
	})
	d.Close()

	entries, err := s.Audit().ListAudit(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "success", entries[0].Payload["outcome"])
	require.Equal(t, "10.0.0.1", entries[0].IP)
}
