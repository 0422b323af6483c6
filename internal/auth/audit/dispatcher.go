package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

// Dispatcher forwards entries to a Sink from a single background goroutine.
// It never drops: when the buffer is full Record blocks, and once the
// dispatcher is closed or the caller's context ends the entry is written
// inline instead.
type Dispatcher struct {
	sink   Sink
	logger *slog.Logger

	ch        chan domain.AuditEntry
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
	failed    atomic.Uint64
}

// NewDispatcher starts the writer goroutine. Call Close to flush.
func NewDispatcher(sink Sink, bufferSize int, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		sink:   sink,
		logger: logger,
		ch:     make(chan domain.AuditEntry, bufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

// Record queues e for writing.
func (d *Dispatcher) Record(ctx context.Context, e domain.AuditEntry) {
	e = stamp(e)

	if d.closed.Load() {
		d.write(e)
		return
	}

	select {
	case d.ch <- e:
	case <-ctx.Done():
		d.write(e)
	case <-d.done:
		d.write(e)
	}
}

func (d *Dispatcher) write(e domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.sink.Write(ctx, e); err != nil {
		d.failed.Add(1)
		d.logger.Error("audit_write_failed", "type", e.Type, "user_id", e.UserID, "error", err)
	}
}

// Close stops accepting queued entries and waits for the buffer to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Failed reports how many entries the sink rejected.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}
