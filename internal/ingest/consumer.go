package ingest

import (
	"context"
	"log"
	"time"

	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/queue"
)

// Consumer binds the broker to the enrich-and-store pipeline: decode the
// delivery, enrich it into a canonical record, persist it. Returning an
// error abandons the delivery for broker redelivery, so store failures
// past the writer's own retries still get the queue-level retry budget.
type Consumer struct {
	writer *Writer
}

// NewConsumer creates a consumer writing through w.
func NewConsumer(w *Writer) *Consumer {
	return &Consumer{writer: w}
}

// Handle implements queue.Handler.
func (c *Consumer) Handle(ctx context.Context, msg queue.Message) error {
	doc := DecodeBody(msg.Body)
	rec := Enrich(doc, model.QueueMetadata{
		MessageID:     msg.ID,
		DeliveryCount: msg.DeliveryCount,
		Sequence:      msg.Sequence,
	}, time.Now())

	if err := c.writer.Store(ctx, rec); err != nil {
		log.Printf("ingest: failed to store %s (delivery %d): %v", rec.ID, msg.DeliveryCount, err)
		return err
	}
	return nil
}
