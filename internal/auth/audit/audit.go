// Package audit moves audit entries off the request path and into durable
// storage.
package audit

import (
	"context"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/idx"
)

// Sink persists audit entries.
type Sink interface {
	Write(ctx context.Context, e domain.AuditEntry) error
}

// StoreSink appends entries to the audit table.
type StoreSink struct {
	Store store.Store
}

func (s StoreSink) Write(ctx context.Context, e domain.AuditEntry) error {
	return s.Store.Audit().AppendAudit(ctx, e)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e domain.AuditEntry) error

func (f SinkFunc) Write(ctx context.Context, e domain.AuditEntry) error { return f(ctx, e) }

// stamp fills the id and timestamp when the caller left them empty.
func stamp(e domain.AuditEntry) domain.AuditEntry {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ID == "" {
		e.ID = idx.NewAt(e.CreatedAt).String()
	}
	return e
}
