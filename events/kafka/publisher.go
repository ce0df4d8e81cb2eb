// Package kafka publishes ledger events for downstream consumers
// (stock decrement, notifications, analytics).
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MKrabs/Snablo-app/ledger"
)

// DefaultTopic is where entry-created events land.
const DefaultTopic = "ledger_entries"

// Publisher implements ledger.EventPublisher on top of a Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    DefaultTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// entryEvent is the wire shape of an entry-created event.
type entryEvent struct {
	ID                      ledger.EntryID       `json:"id"`
	EntryType               ledger.EntryType     `json:"entryType"`
	Kind                    ledger.Kind          `json:"kind"`
	UserID                  ledger.UserID        `json:"userId,omitempty"`
	LocationID              ledger.LocationID    `json:"locationId,omitempty"`
	ShelfID                 ledger.ShelfID       `json:"shelfId,omitempty"`
	CatalogItemIDSnapshot   string               `json:"catalogItemIdSnapshot,omitempty"`
	Quantity                int                  `json:"quantity,omitempty"`
	AmountCents             int64                `json:"amountCents"`
	CashAffectsExpectedCash bool                 `json:"cashAffectsExpectedCash"`
	IsCompensating          bool                 `json:"isCompensating"`
	PaymentMethod           ledger.PaymentMethod `json:"paymentMethod"`
	CreatedAt               string               `json:"createdAt"`
}

// Publish writes one entry-created event, keyed by user so a consumer sees
// one user's entries in order.
func (p *Publisher) Publish(ctx context.Context, entry ledger.Entry) error {
	data, err := json.Marshal(entryEvent{
		ID:                      entry.ID,
		EntryType:               entry.EntryType,
		Kind:                    entry.Kind,
		UserID:                  entry.UserID,
		LocationID:              entry.LocationID,
		ShelfID:                 entry.ShelfID,
		CatalogItemIDSnapshot:   entry.CatalogItemIDSnapshot,
		Quantity:                entry.Quantity,
		AmountCents:             entry.AmountCents,
		CashAffectsExpectedCash: entry.CashAffectsExpectedCash,
		IsCompensating:          entry.IsCompensating,
		PaymentMethod:           entry.PaymentMethod,
		CreatedAt:               entry.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.UserID),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
