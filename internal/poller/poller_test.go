package poller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/KL-16/cart-service/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeEmptier struct {
	mu      sync.Mutex
	emptied []uuid.UUID
	err     error
}

func (f *fakeEmptier) EmptyCart(_ context.Context, cartID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emptied = append(f.emptied, cartID)
	return 2, f.err
}

type fakeReader struct {
	messages []kafka.Message
	pos      int
}

func (f *fakeReader) ReadMessage(_ context.Context) (kafka.Message, error) {
	if f.pos >= len(f.messages) {
		return kafka.Message{}, errors.New("no more messages")
	}
	m := f.messages[f.pos]
	f.pos++
	return m, nil
}

func (f *fakeReader) Close() error {
	return nil
}

func newTestPoller(emptier *fakeEmptier, messages ...kafka.Message) *Poller {
	return &Poller{
		service: emptier,
		reader:  &fakeReader{messages: messages},
		log:     zap.NewNop(),
	}
}

func TestConsume_EmptiesCart(t *testing.T) {
	cartID := uuid.New()
	emptier := &fakeEmptier{}
	p := newTestPoller(emptier, kafka.Message{
		Value: []byte(`{"cart_id":"` + cartID.String() + `","user_id":"42"}`),
	})

	p.consumeAndEmptyCart(context.Background())

	assert.Equal(t, []uuid.UUID{cartID}, emptier.emptied)
}

func TestConsume_MalformedJSON(t *testing.T) {
	emptier := &fakeEmptier{}
	p := newTestPoller(emptier, kafka.Message{Value: []byte("{not json")})

	p.consumeAndEmptyCart(context.Background())

	assert.Empty(t, emptier.emptied)
}

func TestConsume_MissingCartID(t *testing.T) {
	emptier := &fakeEmptier{}
	p := newTestPoller(emptier, kafka.Message{Value: []byte(`{"user_id":"42"}`)})

	p.consumeAndEmptyCart(context.Background())

	assert.Empty(t, emptier.emptied)
}

func TestConsume_MalformedCartID(t *testing.T) {
	emptier := &fakeEmptier{}
	p := newTestPoller(emptier, kafka.Message{Value: []byte(`{"cart_id":"not-a-uuid"}`)})

	p.consumeAndEmptyCart(context.Background())

	assert.Empty(t, emptier.emptied)
}

func TestConsume_CartAlreadyGone(t *testing.T) {
	cartID := uuid.New()
	emptier := &fakeEmptier{err: repository.ErrCartNotFound}
	p := newTestPoller(emptier, kafka.Message{
		Value: []byte(`{"cart_id":"` + cartID.String() + `"}`),
	})

	// a missing cart must be swallowed, not treated as a failure
	p.consumeAndEmptyCart(context.Background())

	assert.Equal(t, []uuid.UUID{cartID}, emptier.emptied)
}

func TestConsume_ReadError(t *testing.T) {
	emptier := &fakeEmptier{}
	p := newTestPoller(emptier) // reader returns an error immediately

	p.consumeAndEmptyCart(context.Background())

	assert.Empty(t, emptier.emptied)
}
