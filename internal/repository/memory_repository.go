package repository

import (
	"context"
	"sync"
	"time"

	"github.com/KL-16/cart-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements CartRepository with in-memory maps.
// Used for local runs (STORAGE=memory) and service tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[uuid.UUID]*domain.Cart      // items held separately
	items map[uuid.UUID]*domain.LineItem
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		carts: make(map[uuid.UUID]*domain.Cart),
		items: make(map[uuid.UUID]*domain.LineItem),
	}
}

func (m *MemoryRepository) FindCart(_ context.Context, id uuid.UUID) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, exists := m.carts[id]
	if !exists {
		return nil, ErrCartNotFound
	}
	return m.cartWithItems(cart), nil
}

func (m *MemoryRepository) FindAllCarts(_ context.Context) ([]*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	carts := make([]*domain.Cart, 0, len(m.carts))
	for _, cart := range m.carts {
		carts = append(carts, m.cartWithItems(cart))
	}
	return carts, nil
}

func (m *MemoryRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored, exists := m.carts[cart.ID]
	if !exists {
		cp := *cart
		cp.LineItems = nil
		cp.CreatedAt = now
		cp.UpdatedAt = now
		m.carts[cart.ID] = &cp
		return nil
	}
	stored.TotalPrice = cart.TotalPrice
	stored.UpdatedAt = now
	return nil
}

func (m *MemoryRepository) SaveCartWithItems(_ context.Context, cart *domain.Cart, items []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored, exists := m.carts[cart.ID]
	if !exists {
		cp := *cart
		cp.LineItems = nil
		cp.CreatedAt = now
		cp.UpdatedAt = now
		m.carts[cart.ID] = &cp
	} else {
		stored.TotalPrice = cart.TotalPrice
		stored.UpdatedAt = now
	}

	for i := range items {
		m.saveItemLocked(&items[i])
	}
	return nil
}

func (m *MemoryRepository) DeleteCartByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.carts[id]; !exists {
		return ErrCartNotFound
	}
	delete(m.carts, id)
	for itemID, item := range m.items {
		if item.CartID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *MemoryRepository) FindLineItem(_ context.Context, id uuid.UUID) (*domain.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[id]
	if !exists {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryRepository) SaveLineItem(_ context.Context, item *domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveItemLocked(item)
	return nil
}

func (m *MemoryRepository) SaveLineItems(_ context.Context, items []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range items {
		m.saveItemLocked(&items[i])
	}
	return nil
}

func (m *MemoryRepository) DeleteLineItemByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[id]; !exists {
		return ErrItemNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *MemoryRepository) DeleteLineItemsByCartID(_ context.Context, cartID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteItemsLocked(cartID), nil
}

func (m *MemoryRepository) EmptyCart(_ context.Context, cartID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, exists := m.carts[cartID]
	if !exists {
		return 0, ErrCartNotFound
	}
	removed := m.deleteItemsLocked(cartID)
	cart.TotalPrice = decimal.Zero
	cart.UpdatedAt = time.Now()
	return removed, nil
}

func (m *MemoryRepository) RunMigrations(_ *Credentials) error {
	return nil
}

func (m *MemoryRepository) Close() error {
	return nil
}

func (m *MemoryRepository) saveItemLocked(item *domain.LineItem) {
	now := time.Now()
	stored, exists := m.items[item.ID]
	if !exists {
		cp := *item
		cp.CreatedAt = now
		cp.UpdatedAt = now
		m.items[item.ID] = &cp
		return
	}
	stored.Quantity = item.Quantity
	stored.UpdatedAt = now
}

func (m *MemoryRepository) deleteItemsLocked(cartID uuid.UUID) int64 {
	var removed int64
	for itemID, item := range m.items {
		if item.CartID == cartID {
			delete(m.items, itemID)
			removed++
		}
	}
	return removed
}

// caller holds at least a read lock
func (m *MemoryRepository) cartWithItems(cart *domain.Cart) *domain.Cart {
	cp := *cart
	cp.LineItems = []domain.LineItem{}
	for _, item := range m.items {
		if item.CartID == cart.ID {
			cp.LineItems = append(cp.LineItems, *item)
		}
	}
	return &cp
}
