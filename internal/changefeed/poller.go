package changefeed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/loginsight/loginsight/internal/docstore"
)

// Source exposes the ordered change stream of the document store.
type Source interface {
	LogsAfterSeq(ctx context.Context, afterSeq int64, max int) ([]docstore.ChangedLog, error)
}

// Handler processes one batch of changed documents. Returning an error
// leaves the cursor in place, so the same batch is redelivered on the
// next tick (at-least-once).
type Handler func(ctx context.Context, docs []map[string]any) error

// Config holds tunable parameters for the poller.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Poller tails the document store's change stream and hands each batch of
// changed documents to the handler, committing the lease cursor only after
// the handler succeeds.
type Poller struct {
	source    Source
	handler   Handler
	lease     *Lease
	interval  time.Duration
	batchSize int

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a change-feed poller. Interval defaults to 2s and
// batch size to 100.
func NewPoller(source Source, lease *Lease, handler Handler, conf ...Config) *Poller {
	interval := 2 * time.Second
	batchSize := 100
	if len(conf) > 0 {
		if conf[0].Interval > 0 {
			interval = conf[0].Interval
		}
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
	}
	return &Poller{
		source:    source,
		handler:   handler,
		lease:     lease,
		interval:  interval,
		batchSize: batchSize,
		done:      make(chan struct{}),
	}
}

// Start launches the poll loop. ctx cancellation stops it as well as Stop.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.drain(ctx)
			case <-ctx.Done():
				return
			case <-p.done:
				return
			}
		}
	}()
}

// drain processes pending change batches until the feed is caught up or a
// handler/store error stops progress for this tick.
func (p *Poller) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		default:
		}

		changes, err := p.source.LogsAfterSeq(ctx, p.lease.Cursor(), p.batchSize)
		if err != nil {
			log.Printf("changefeed: read after seq %d: %v", p.lease.Cursor(), err)
			return
		}
		if len(changes) == 0 {
			return
		}

		docs := make([]map[string]any, len(changes))
		for i, c := range changes {
			docs[i] = c.Doc
		}

		if err := p.handler(ctx, docs); err != nil {
			// Cursor stays put; the batch is replayed next tick.
			log.Printf("changefeed: handler failed for batch of %d, will retry: %v", len(docs), err)
			return
		}

		last := changes[len(changes)-1].Seq
		if err := p.lease.Commit(last); err != nil {
			log.Printf("changefeed: commit cursor %d: %v", last, err)
			return
		}
	}
}

// Stop terminates the poll loop and waits for it to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}
