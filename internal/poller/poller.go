package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/KL-16/cart-service/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// cartEmptier is the slice of the cart service the poller needs.
type cartEmptier interface {
	EmptyCart(ctx context.Context, cartID uuid.UUID) (int64, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller consumes checkout-completed events and empties the carts they
// refer to. A cart that is already gone is not an error.
type Poller struct {
	service cartEmptier
	reader  messageReader
	log     *zap.Logger
}

func New(service cartEmptier, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    "checkout-completed",
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{service: service, reader: reader, log: log}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.consumeAndEmptyCart(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", zap.Error(err))
	}
}

func (p *Poller) consumeAndEmptyCart(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Error("error reading message", zap.Error(err))
		}
		return
	}

	var payload map[string]interface{}
	if errUnMarshal := json.Unmarshal(m.Value, &payload); errUnMarshal != nil {
		p.log.Error("error parsing message", zap.Error(errUnMarshal))
		return
	}
	rawCartID, ok := payload["cart_id"].(string)
	if !ok {
		p.log.Error("missing or invalid cart_id")
		return
	}
	cartID, errParse := uuid.Parse(rawCartID)
	if errParse != nil {
		p.log.Error("malformed cart_id", zap.String("cart_id", rawCartID), zap.Error(errParse))
		return
	}

	removed, errEmpty := p.service.EmptyCart(ctx, cartID)
	if errEmpty != nil && !errors.Is(errEmpty, repository.ErrCartNotFound) {
		p.log.Error("failed to empty cart", zap.String("cart_id", rawCartID), zap.Error(errEmpty))
		return
	}
	if errEmpty == nil {
		p.log.Info("cart emptied after checkout",
			zap.String("cart_id", rawCartID), zap.Int64("items_removed", removed))
	}
}
