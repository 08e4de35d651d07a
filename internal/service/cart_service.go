package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KL-16/cart-service/internal/cache"
	"github.com/KL-16/cart-service/internal/domain"
	"github.com/KL-16/cart-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var one = decimal.NewFromInt(1)

// NewLineItem is the input for attaching a product to a cart.
type NewLineItem struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal
}

// CartService owns the aggregate invariant: a cart's total price always
// equals the sum of unit price times quantity over its line items.
// Mutations of the same cart are serialized with a per-cart lock, so
// two concurrent single-unit operations cannot race on the total.
type CartService struct {
	repo  repository.CartRepository
	cache cache.CartCache
	log   *zap.Logger
	sfg   singleflight.Group // Prevents cache stampede

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

func NewCartService(repo repository.CartRepository, cartCache cache.CartCache, log *zap.Logger) *CartService {
	return &CartService{
		repo:  repo,
		cache: cartCache,
		log:   log,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// CreateCart builds a cart from the initial items. Quantities are
// validated the same way as on AddLineItems: any non-positive quantity
// fails the whole call and nothing is persisted.
func (s *CartService) CreateCart(ctx context.Context, items []NewLineItem) (*domain.Cart, error) {
	if err := validateQuantities(items); err != nil {
		return nil, err
	}

	cartID := uuid.New()
	lineItems, total := buildLineItems(cartID, items)

	cart := &domain.Cart{ID: cartID, TotalPrice: total}
	if err := s.repo.SaveCartWithItems(ctx, cart, lineItems); err != nil {
		return nil, fmt.Errorf("save cart with items: %w", err)
	}

	return s.repo.FindCart(ctx, cartID)
}

// GetCart is a read-through: cache first, repository on miss. Cache
// failures never fail the read.
func (s *CartService) GetCart(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(cartID.String(), func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, cartID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cache get error", zap.Error(err))
		}

		cart, errGet := s.repo.FindCart(ctx, cartID)
		if errGet != nil {
			return nil, errGet
		}

		if errSet := s.cache.Set(ctx, cartID, cart); errSet != nil {
			s.log.Warn("cache set error", zap.Error(errSet))
		}

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *CartService) GetAllCarts(ctx context.Context) ([]*domain.Cart, error) {
	return s.repo.FindAllCarts(ctx)
}

// AddLineItems attaches new line items to an existing cart. The call is
// all-or-nothing: every quantity is validated before anything is
// persisted, the new total is produced by a single fold over the
// inputs, and the items and the total are written in one repository
// transaction so a storage failure attaches nothing.
func (s *CartService) AddLineItems(ctx context.Context, cartID uuid.UUID, items []NewLineItem) (*domain.Cart, error) {
	if err := validateQuantities(items); err != nil {
		return nil, err
	}

	unlock := s.lockCart(cartID)
	defer unlock()

	cart, err := s.repo.FindCart(ctx, cartID)
	if err != nil {
		s.forgetLockIfMissing(cartID, err)
		return nil, err
	}

	lineItems, added := buildLineItems(cartID, items)
	cart.TotalPrice = cart.TotalPrice.Add(added)
	if err := s.repo.SaveCartWithItems(ctx, cart, lineItems); err != nil {
		return nil, fmt.Errorf("save cart with items: %w", err)
	}

	s.invalidateCache(cartID)
	return s.repo.FindCart(ctx, cartID)
}

// IncrementLineItem adds a single unit to the line item and its unit
// price to the owning cart's total.
func (s *CartService) IncrementLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error) {
	item, err := s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCart(item.CartID)
	defer unlock()

	// re-read under the lock, a concurrent call may have changed it
	item, err = s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.FindCart(ctx, item.CartID)
	if err != nil {
		s.forgetLockIfMissing(item.CartID, err)
		return nil, err
	}

	item.Quantity = item.Quantity.Add(one)
	if err := s.repo.SaveLineItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save line item: %w", err)
	}

	cart.TotalPrice = cart.TotalPrice.Add(item.UnitPrice)
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.invalidateCache(cart.ID)
	return s.repo.FindCart(ctx, cart.ID)
}

// DecrementLineItem removes a single unit. Quantities are decimal, so a
// line item at one unit or less (fractional quantities included) is
// removed entirely rather than being driven to zero or below.
func (s *CartService) DecrementLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error) {
	item, err := s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCart(item.CartID)
	defer unlock()

	item, err = s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.FindCart(ctx, item.CartID)
	if err != nil {
		s.forgetLockIfMissing(item.CartID, err)
		return nil, err
	}

	if item.Quantity.LessThanOrEqual(one) {
		return s.removeItemLocked(ctx, cart, item)
	}

	item.Quantity = item.Quantity.Sub(one)
	if err := s.repo.SaveLineItem(ctx, item); err != nil {
		return nil, fmt.Errorf("save line item: %w", err)
	}

	cart.TotalPrice = cart.TotalPrice.Sub(item.UnitPrice)
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}

	s.invalidateCache(cart.ID)
	return s.repo.FindCart(ctx, cart.ID)
}

// RemoveLineItem detaches the line item and subtracts its full line
// total from the cart.
func (s *CartService) RemoveLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error) {
	item, err := s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	unlock := s.lockCart(item.CartID)
	defer unlock()

	item, err = s.repo.FindLineItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	cart, err := s.repo.FindCart(ctx, item.CartID)
	if err != nil {
		s.forgetLockIfMissing(item.CartID, err)
		return nil, err
	}

	return s.removeItemLocked(ctx, cart, item)
}

// ClearCart bulk-deletes the cart's line items and returns how many
// were removed. It deliberately leaves the total untouched; ResetTotal
// is the separate explicit step, and EmptyCart does both atomically.
func (s *CartService) ClearCart(ctx context.Context, cartID uuid.UUID) (int64, error) {
	unlock := s.lockCart(cartID)
	defer unlock()

	removed, err := s.repo.DeleteLineItemsByCartID(ctx, cartID)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		// the bulk delete cannot tell an empty cart from a missing one
		if _, findErr := s.repo.FindCart(ctx, cartID); findErr != nil {
			s.forgetLockIfMissing(cartID, findErr)
		}
	}

	s.invalidateCache(cartID)
	return removed, nil
}

// ResetTotal sets the cart's total to exactly zero. Idempotent.
func (s *CartService) ResetTotal(ctx context.Context, cartID uuid.UUID) error {
	unlock := s.lockCart(cartID)
	defer unlock()

	cart, err := s.repo.FindCart(ctx, cartID)
	if err != nil {
		s.forgetLockIfMissing(cartID, err)
		return err
	}

	cart.TotalPrice = decimal.Zero
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}

	s.invalidateCache(cartID)
	return nil
}

// EmptyCart clears the items and zeroes the total in one repository
// transaction, so no reader observes an empty cart with a stale total.
func (s *CartService) EmptyCart(ctx context.Context, cartID uuid.UUID) (int64, error) {
	unlock := s.lockCart(cartID)
	defer unlock()

	removed, err := s.repo.EmptyCart(ctx, cartID)
	if err != nil {
		s.forgetLockIfMissing(cartID, err)
		return 0, err
	}

	s.invalidateCache(cartID)
	return removed, nil
}

// DeleteCart removes the cart and, through the repository, all of its
// line items.
func (s *CartService) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	unlock := s.lockCart(cartID)
	defer unlock()

	if err := s.repo.DeleteCartByID(ctx, cartID); err != nil {
		s.forgetLockIfMissing(cartID, err)
		return err
	}

	s.invalidateCache(cartID)

	s.locksMu.Lock()
	delete(s.locks, cartID)
	s.locksMu.Unlock()
	return nil
}

// caller holds the cart lock
func (s *CartService) removeItemLocked(ctx context.Context, cart *domain.Cart, item *domain.LineItem) (*domain.Cart, error) {
	cart.TotalPrice = cart.TotalPrice.Sub(item.LineTotal())
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if err := s.repo.DeleteLineItemByID(ctx, item.ID); err != nil {
		return nil, err
	}

	s.invalidateCache(cart.ID)
	return s.repo.FindCart(ctx, cart.ID)
}

// lockCart serializes mutations of one cart. Entries are dropped again
// by DeleteCart and by forgetLockIfMissing, so lookups of absent cart
// IDs do not grow the map forever.
func (s *CartService) lockCart(cartID uuid.UUID) func() {
	s.locksMu.Lock()
	mu, exists := s.locks[cartID]
	if !exists {
		mu = &sync.Mutex{}
		s.locks[cartID] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// forgetLockIfMissing evicts the per-cart mutex when the repository
// reported the cart absent. The caller still holds the mutex it got
// from lockCart; a later call for the same ID creates a fresh one.
func (s *CartService) forgetLockIfMissing(cartID uuid.UUID, err error) {
	if !errors.Is(err, repository.ErrCartNotFound) {
		return
	}
	s.locksMu.Lock()
	delete(s.locks, cartID)
	s.locksMu.Unlock()
}

func (s *CartService) invalidateCache(cartID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, cartID); err != nil {
		s.log.Warn("cache invalidate error", zap.Error(err))
	}
}

func validateQuantities(items []NewLineItem) error {
	for _, item := range items {
		if item.Quantity.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: %q", ErrInvalidQuantity, item.Name)
		}
	}
	return nil
}

// buildLineItems is a pure fold: it produces the new line items and the
// total they add without any shared accumulator.
func buildLineItems(cartID uuid.UUID, items []NewLineItem) ([]domain.LineItem, decimal.Decimal) {
	built := make([]domain.LineItem, 0, len(items))
	total := decimal.Zero
	for _, in := range items {
		built = append(built, domain.LineItem{
			ID:        uuid.New(),
			CartID:    cartID,
			Name:      in.Name,
			UnitPrice: in.UnitPrice,
			Quantity:  in.Quantity,
		})
		total = total.Add(in.UnitPrice.Mul(in.Quantity))
	}
	return built, total
}
