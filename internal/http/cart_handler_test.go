package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KL-16/cart-service/internal/domain"
	"github.com/KL-16/cart-service/internal/repository"
	"github.com/KL-16/cart-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ServiceMock implements CartService for handler tests.
type ServiceMock struct {
	cart    *domain.Cart
	removed int64
	err     error

	lastCartID uuid.UUID
	lastItems  []service.NewLineItem
}

func (m *ServiceMock) CreateCart(_ context.Context, items []service.NewLineItem) (*domain.Cart, error) {
	m.lastItems = items
	return m.cart, m.err
}

func (m *ServiceMock) GetCart(_ context.Context, cartID uuid.UUID) (*domain.Cart, error) {
	m.lastCartID = cartID
	return m.cart, m.err
}

func (m *ServiceMock) GetAllCarts(_ context.Context) ([]*domain.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*domain.Cart{m.cart}, nil
}

func (m *ServiceMock) AddLineItems(_ context.Context, cartID uuid.UUID, items []service.NewLineItem) (*domain.Cart, error) {
	m.lastCartID = cartID
	m.lastItems = items
	return m.cart, m.err
}

func (m *ServiceMock) IncrementLineItem(_ context.Context, _ uuid.UUID) (*domain.Cart, error) {
	return m.cart, m.err
}

func (m *ServiceMock) DecrementLineItem(_ context.Context, _ uuid.UUID) (*domain.Cart, error) {
	return m.cart, m.err
}

func (m *ServiceMock) RemoveLineItem(_ context.Context, _ uuid.UUID) (*domain.Cart, error) {
	return m.cart, m.err
}

func (m *ServiceMock) EmptyCart(_ context.Context, cartID uuid.UUID) (int64, error) {
	m.lastCartID = cartID
	return m.removed, m.err
}

func (m *ServiceMock) ResetTotal(_ context.Context, cartID uuid.UUID) error {
	m.lastCartID = cartID
	return m.err
}

func (m *ServiceMock) DeleteCart(_ context.Context, cartID uuid.UUID) error {
	m.lastCartID = cartID
	return m.err
}

func newTestRouter(mock *ServiceMock) chi.Router {
	handler := NewCartHandler(mock, zap.NewNop(), 5*time.Second)
	r := chi.NewRouter()
	handler.Routes(r)
	return r
}

func mockCart() *domain.Cart {
	cartID := uuid.New()
	return &domain.Cart{
		ID:         cartID,
		TotalPrice: decimal.RequireFromString("2.50"),
		LineItems: []domain.LineItem{
			{
				ID:        uuid.New(),
				CartID:    cartID,
				Name:      "Apple",
				UnitPrice: decimal.RequireFromString("1.25"),
				Quantity:  decimal.NewFromInt(2),
			},
		},
	}
}

func TestGetCart_OK(t *testing.T) {
	cart := mockCart()
	router := newTestRouter(&ServiceMock{cart: cart})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/carts/"+cart.ID.String(), nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var got domain.Cart
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Equal(t, cart.ID, got.ID)
	assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("2.50")),
		"decimal fields must survive serialization exactly")
	require.Len(t, got.LineItems, 1)
	assert.True(t, got.LineItems[0].UnitPrice.Equal(decimal.RequireFromString("1.25")))
}

func TestGetCart_InvalidID(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/carts/not-a-uuid", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestGetCart_NotFound(t *testing.T) {
	router := newTestRouter(&ServiceMock{err: repository.ErrCartNotFound})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/carts/"+uuid.NewString(), nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "cart_not_found", resp.Code)
}

func TestGetAllCarts_OK(t *testing.T) {
	router := newTestRouter(&ServiceMock{cart: mockCart()})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/carts/", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var got []domain.Cart
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}

func TestCreateCart_Created(t *testing.T) {
	cart := mockCart()
	mock := &ServiceMock{cart: cart}
	router := newTestRouter(mock)

	body := `{"items":[{"name":"Apple","unit_price":"1.25","quantity":"2"}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/", bytes.NewBufferString(body))
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusCreated, recorder.Code)
	require.Len(t, mock.lastItems, 1)
	assert.Equal(t, "Apple", mock.lastItems[0].Name)
	assert.True(t, mock.lastItems[0].UnitPrice.Equal(decimal.RequireFromString("1.25")))
}

func TestCreateCart_InvalidJSON(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/", bytes.NewBufferString("{not json"))
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCreateCart_MissingItemName(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	body := `{"items":[{"unit_price":"1.25","quantity":"2"}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/", bytes.NewBufferString(body))
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAddItems_OK(t *testing.T) {
	cart := mockCart()
	mock := &ServiceMock{cart: cart}
	router := newTestRouter(mock)

	body := `{"items":[{"name":"Milk","unit_price":"2.15","quantity":"3"}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/"+cart.ID.String()+"/items", bytes.NewBufferString(body))
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, cart.ID, mock.lastCartID)
}

func TestAddItems_MissingItems(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/"+uuid.NewString()+"/items", bytes.NewBufferString(`{}`))
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAddItems_NegativeUnitPrice(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	body := `{"items":[{"name":"Milk","unit_price":"-2.15","quantity":"1"}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/"+uuid.NewString()+"/items", bytes.NewBufferString(body))
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_unit_price", resp.Code)
}

func TestAddItems_InvalidQuantityFromService(t *testing.T) {
	router := newTestRouter(&ServiceMock{err: service.ErrInvalidQuantity})

	body := `{"items":[{"name":"Milk","unit_price":"2.15","quantity":"0"}]}`
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/"+uuid.NewString()+"/items", bytes.NewBufferString(body))
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_quantity", resp.Code)
}

func TestIncrementItem_OK(t *testing.T) {
	router := newTestRouter(&ServiceMock{cart: mockCart()})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/items/"+uuid.NewString()+"/increment", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
	assert.NotNil(t, resp.Cart)
}

func TestDecrementItem_ItemNotFound(t *testing.T) {
	router := newTestRouter(&ServiceMock{err: repository.ErrItemNotFound})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/items/"+uuid.NewString()+"/decrement", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusNotFound, recorder.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, "item_not_found", resp.Code)
}

func TestClearCart_OK(t *testing.T) {
	mock := &ServiceMock{removed: 3}
	router := newTestRouter(mock)

	cartID := uuid.New()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/carts/"+cartID.String()+"/items", nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, cartID, mock.lastCartID)

	var resp ClearCartResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.ItemsRemoved)
}

func TestResetTotal_OK(t *testing.T) {
	router := newTestRouter(&ServiceMock{})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/carts/"+uuid.NewString()+"/reset", nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestDeleteCart_NotFound(t *testing.T) {
	router := newTestRouter(&ServiceMock{err: repository.ErrCartNotFound})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/carts/"+uuid.NewString(), nil)
	router.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestDeleteCart_OK(t *testing.T) {
	mock := &ServiceMock{}
	router := newTestRouter(mock)

	cartID := uuid.New()
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("DELETE", "/carts/"+cartID.String(), nil)
	router.ServeHTTP(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, cartID, mock.lastCartID)
}
