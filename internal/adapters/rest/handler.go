package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler serves the auction REST API
type Handler struct {
	settlement inbound.SettlementService
	items      inbound.ItemService
	users      inbound.UserService
	logger     zerolog.Logger
}

type HandlerParams struct {
	SettlementService inbound.SettlementService
	ItemService       inbound.ItemService
	UserService       inbound.UserService
	Logger            zerolog.Logger
}

func NewHandler(params HandlerParams) *Handler {
	return &Handler{
		settlement: params.SettlementService,
		items:      params.ItemService,
		users:      params.UserService,
		logger:     params.Logger.With().Str("component", "rest_handler").Logger(),
	}
}

// Register mounts the API routes
func (h *Handler) Register(r chi.Router) {
	r.Post("/users", h.createUser)
	r.Get("/users/{id}", h.getUser)

	r.Get("/items", h.listItems)
	r.Get("/items/{id}", h.getItem)
	r.Get("/items/{id}/bids", h.listBids)
	r.Get("/items/{id}/bids/highest", h.highestBid)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/items", h.createItem)
		r.Post("/items/{id}/bid", h.placeBid)
		r.Post("/items/{id}/close", h.closeAuction)
	})
}

type createUserReq struct {
	Username string           `json:"username"`
	Balance  *decimal.Decimal `json:"balance,omitempty"`
}

type createItemReq struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	EndTime       string          `json:"end_time"`
}

type placeBidReq struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	user, err := h.users.CreateUser(r.Context(), inbound.CreateUserRequest{
		Username: req.Username,
		Balance:  req.Balance,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	sellerID, _ := UserIDFromContext(r.Context())

	var req createItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		h.writeError(w, r, shared.ErrInvalidTimeFormat)
		return
	}

	created, err := h.items.CreateItem(r.Context(), inbound.CreateItemRequest{
		SellerID:      sellerID,
		Name:          req.Name,
		Description:   req.Description,
		StartingPrice: req.StartingPrice,
		EndTime:       endTime,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	items, err := h.items.ListItems(r.Context(), inbound.ListItemsRequest{Page: page, PageSize: pageSize})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}

	found, err := h.items.GetItem(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) listBids(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}

	bids, err := h.settlement.GetBids(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bids == nil {
		bids = []*bid.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

func (h *Handler) highestBid(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}

	highest, err := h.settlement.GetHighestBid(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, highest)
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	bidderID, _ := UserIDFromContext(r.Context())
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req placeBidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if err := bid.ValidateAmount(req.Amount); err != nil {
		h.writeError(w, r, err)
		return
	}

	accepted, err := h.settlement.PlaceBid(r.Context(), inbound.PlaceBidRequest{
		ItemID:   itemID,
		BidderID: bidderID,
		Amount:   req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (h *Handler) closeAuction(w http.ResponseWriter, r *http.Request) {
	callerID, _ := UserIDFromContext(r.Context())
	itemID, ok := pathID(w, r)
	if !ok {
		return
	}

	found, err := h.items.GetItem(r.Context(), itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if found.SellerID != callerID {
		h.writeError(w, r, shared.ErrNotSeller)
		return
	}

	result, err := h.items.CloseAuction(r.Context(), itemID, time.Time{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
