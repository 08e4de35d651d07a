package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/KL-16/cart-service/internal/domain"
	"github.com/KL-16/cart-service/internal/repository"
	"github.com/KL-16/cart-service/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService is the slice of the aggregate the HTTP layer calls.
type CartService interface {
	CreateCart(ctx context.Context, items []service.NewLineItem) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID uuid.UUID) (*domain.Cart, error)
	GetAllCarts(ctx context.Context) ([]*domain.Cart, error)
	AddLineItems(ctx context.Context, cartID uuid.UUID, items []service.NewLineItem) (*domain.Cart, error)
	IncrementLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error)
	DecrementLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error)
	RemoveLineItem(ctx context.Context, itemID uuid.UUID) (*domain.Cart, error)
	EmptyCart(ctx context.Context, cartID uuid.UUID) (int64, error)
	ResetTotal(ctx context.Context, cartID uuid.UUID) error
	DeleteCart(ctx context.Context, cartID uuid.UUID) error
}

type CartHandler struct {
	service  CartService
	validate *validator.Validate
	log      *zap.Logger
	timeout  time.Duration
}

func NewCartHandler(svc CartService, log *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		service:  svc,
		validate: validator.New(),
		log:      log,
		timeout:  timeout,
	}
}

type NewItemDTO struct {
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type CreateCartRequestDTO struct {
	Items []NewItemDTO `json:"items" validate:"omitempty,dive"`
}

type AddItemsRequestDTO struct {
	Items []NewItemDTO `json:"items" validate:"required,min=1,dive"`
}

type MessageResponse struct {
	Message string       `json:"message"`
	Cart    *domain.Cart `json:"cart,omitempty"`
}

type ClearCartResponse struct {
	Message      string `json:"message"`
	ItemsRemoved int64  `json:"items_removed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/carts", func(r chi.Router) {
		r.Get("/", h.GetAllCarts)
		r.Post("/", h.CreateCart)
		r.Route("/{cart_id}", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.DeleteCart)
			r.Post("/items", h.AddItems)
			r.Delete("/items", h.ClearCart)
			r.Post("/reset", h.ResetTotal)
		})
	})
	r.Route("/items/{item_id}", func(r chi.Router) {
		r.Post("/increment", h.IncrementItem)
		r.Post("/decrement", h.DecrementItem)
		r.Delete("/", h.RemoveItem)
	})
}

func (h *CartHandler) GetAllCarts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	carts, err := h.service.GetAllCarts(ctx)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if carts == nil {
		carts = []*domain.Cart{}
	}

	respondJSON(h.log, w, http.StatusOK, carts)
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := parseIDParam(h.log, w, r, "cart_id")
	if !ok {
		return
	}

	cart, err := h.service.GetCart(ctx, cartID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, cart)
}

func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateCartRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(h.log, w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !h.validateRequest(w, &req) {
		return
	}
	items, ok := h.toNewLineItems(w, req.Items)
	if !ok {
		return
	}

	cart, err := h.service.CreateCart(ctx, items)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusCreated, cart)
}

func (h *CartHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := parseIDParam(h.log, w, r, "cart_id")
	if !ok {
		return
	}

	var req AddItemsRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(h.log, w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if !h.validateRequest(w, &req) {
		return
	}
	items, ok := h.toNewLineItems(w, req.Items)
	if !ok {
		return
	}

	cart, err := h.service.AddLineItems(ctx, cartID, items)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, cart)
}

func (h *CartHandler) IncrementItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := parseIDParam(h.log, w, r, "item_id")
	if !ok {
		return
	}

	cart, err := h.service.IncrementLineItem(ctx, itemID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, MessageResponse{
		Message: "single unit added to cart",
		Cart:    cart,
	})
}

func (h *CartHandler) DecrementItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := parseIDParam(h.log, w, r, "item_id")
	if !ok {
		return
	}

	cart, err := h.service.DecrementLineItem(ctx, itemID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, MessageResponse{
		Message: "single unit removed from cart",
		Cart:    cart,
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	itemID, ok := parseIDParam(h.log, w, r, "item_id")
	if !ok {
		return
	}

	cart, err := h.service.RemoveLineItem(ctx, itemID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, MessageResponse{
		Message: "line item removed from cart",
		Cart:    cart,
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := parseIDParam(h.log, w, r, "cart_id")
	if !ok {
		return
	}

	removed, err := h.service.EmptyCart(ctx, cartID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, ClearCartResponse{
		Message:      "cart cleared",
		ItemsRemoved: removed,
	})
}

func (h *CartHandler) ResetTotal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := parseIDParam(h.log, w, r, "cart_id")
	if !ok {
		return
	}

	if err := h.service.ResetTotal(ctx, cartID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, MessageResponse{Message: "cart total reset to zero"})
}

func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cartID, ok := parseIDParam(h.log, w, r, "cart_id")
	if !ok {
		return
	}

	if err := h.service.DeleteCart(ctx, cartID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(h.log, w, http.StatusOK, MessageResponse{Message: "cart deleted"})
}

func (h *CartHandler) validateRequest(w http.ResponseWriter, req interface{}) bool {
	if err := h.validate.Struct(req); err != nil {
		respondError(h.log, w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *CartHandler) toNewLineItems(w http.ResponseWriter, dtos []NewItemDTO) ([]service.NewLineItem, bool) {
	items := make([]service.NewLineItem, 0, len(dtos))
	for _, dto := range dtos {
		if dto.UnitPrice.IsNegative() {
			respondError(h.log, w, http.StatusBadRequest, "invalid_unit_price",
				"unit_price must not be negative")
			return nil, false
		}
		items = append(items, service.NewLineItem{
			Name:      dto.Name,
			UnitPrice: dto.UnitPrice,
			Quantity:  dto.Quantity,
		})
	}
	return items, true
}

func (h *CartHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		respondError(h.log, w, http.StatusNotFound, "cart_not_found", "no cart with given ID exists")
	case errors.Is(err, repository.ErrItemNotFound):
		respondError(h.log, w, http.StatusNotFound, "item_not_found", "no line item with given ID exists")
	case errors.Is(err, service.ErrInvalidQuantity):
		respondError(h.log, w, http.StatusBadRequest, "invalid_quantity", err.Error())
	default:
		h.log.Error("internal error", zap.Error(err))
		respondError(h.log, w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func parseIDParam(log *zap.Logger, w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(log, w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func respondJSON(log *zap.Logger, w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

func respondError(log *zap.Logger, w http.ResponseWriter, status int, code, message string) {
	respondJSON(log, w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
