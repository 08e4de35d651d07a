package repository

import (
	"context"
	"errors"

	"github.com/KL-16/cart-service/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("line item not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// CartRepository is keyed storage for carts and their line items.
// FindCart and FindAllCarts return carts with line items attached.
type CartRepository interface {
	FindCart(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	FindAllCarts(ctx context.Context) ([]*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart) error

	// SaveCartWithItems upserts the cart and the given line items in a
	// single transaction. Either the new total and the items land
	// together or neither does.
	SaveCartWithItems(ctx context.Context, cart *domain.Cart, items []domain.LineItem) error

	DeleteCartByID(ctx context.Context, id uuid.UUID) error
	FindLineItem(ctx context.Context, id uuid.UUID) (*domain.LineItem, error)
	SaveLineItem(ctx context.Context, item *domain.LineItem) error
	SaveLineItems(ctx context.Context, items []domain.LineItem) error
	DeleteLineItemByID(ctx context.Context, id uuid.UUID) error
	DeleteLineItemsByCartID(ctx context.Context, cartID uuid.UUID) (int64, error)

	// EmptyCart deletes every line item of the cart and zeroes its total
	// in a single transaction.
	EmptyCart(ctx context.Context, cartID uuid.UUID) (int64, error)

	RunMigrations(cred *Credentials) error
	Close() error
}
