package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bid-settlement-service/internal/adapters/memory"
	"bid-settlement-service/internal/app"
	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"
	"bid-settlement-service/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type apiFixture struct {
	router http.Handler
	clock  *testClock
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: baseTime}
	locks := app.NewItemLocks()

	settlement := app.NewSettlementService(app.SettlementServiceParams{
		Ledger:  store,
		BidRepo: store,
		Locks:   locks,
		Clock:   clock.Now,
		Logger:  zerolog.Nop(),
	})
	items := app.NewItemService(app.ItemServiceParams{
		ItemRepo: store,
		UserRepo: store.Users(),
		Locks:    locks,
		Clock:    clock.Now,
		Logger:   zerolog.Nop(),
	})
	users := app.NewUserService(app.UserServiceParams{
		UserRepo:       store.Users(),
		DefaultBalance: decimal.NewFromInt(1000),
		Clock:          clock.Now,
		Logger:         zerolog.Nop(),
	})

	handler := NewHandler(HandlerParams{
		SettlementService: settlement,
		ItemService:       items,
		UserService:       users,
		Logger:            zerolog.Nop(),
	})
	return &apiFixture{
		router: NewRouter(RouterParams{Handler: handler, Logger: zerolog.Nop()}),
		clock:  clock,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, userID *uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != nil {
		req.Header.Set(UserIDHeader, userID.String())
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) createUser(t *testing.T, name, balance string) uuid.UUID {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/users", nil, map[string]string{"username": name, "balance": balance})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user shared.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user.ID
}

func (f *apiFixture) createItem(t *testing.T, sellerID uuid.UUID, startingPrice string, endTime time.Time) uuid.UUID {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/items", &sellerID, map[string]string{
		"name":           "Vintage camera",
		"description":    "Rangefinder, 1958",
		"starting_price": startingPrice,
		"end_time":       endTime.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created item.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestPlaceBid_Flow(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")
	alice := f.createUser(t, "alice", "500")
	itemID := f.createItem(t, seller, "100", baseTime.Add(time.Hour))
	bidPath := "/items/" + itemID.String() + "/bid"

	rec := f.do(t, http.MethodPost, bidPath, &alice, `{"amount": 150}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var accepted bid.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, alice, accepted.BidderID)
	assert.True(t, accepted.Amount.Equal(decimal.NewFromInt(150)))

	rec = f.do(t, http.MethodPost, bidPath, &alice, `{"amount": "150"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, shared.ErrBidTooLow.Error(), body.Msg)
	assert.Equal(t, "150", body.CurrentPrice)

	rec = f.do(t, http.MethodGet, "/items/"+itemID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current item.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.True(t, current.CurrentPrice.Equal(decimal.NewFromInt(150)))
	require.NotNil(t, current.HighestBidderID)
	assert.Equal(t, alice, *current.HighestBidderID)

	rec = f.do(t, http.MethodGet, "/items/"+itemID.String()+"/bids", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []bid.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	require.Len(t, bids, 1)
	assert.Equal(t, accepted.ID, bids[0].ID)

	rec = f.do(t, http.MethodGet, "/items/"+itemID.String()+"/bids/highest", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPlaceBid_SubScaleAmountLeavesPriceUntouched(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")
	alice := f.createUser(t, "alice", "500")
	itemID := f.createItem(t, seller, "100", baseTime.Add(time.Hour))
	bidPath := "/items/" + itemID.String() + "/bid"

	rec := f.do(t, http.MethodPost, bidPath, &alice, `{"amount": 100.00001}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, shared.ErrAmountScale.Error(), decodeError(t, rec).Msg)

	rec = f.do(t, http.MethodGet, "/items/"+itemID.String()+"/bids", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []bid.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bids))
	assert.Empty(t, bids)

	rec = f.do(t, http.MethodPost, bidPath, &alice, `{"amount": "100.0001"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/items/"+itemID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var current item.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
	assert.True(t, current.CurrentPrice.Equal(decimal.RequireFromString("100.0001")))
}

func TestPlaceBid_StatusCodes(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")
	poor := f.createUser(t, "poor", "120")
	itemID := f.createItem(t, seller, "100", baseTime.Add(time.Hour))
	bidPath := "/items/" + itemID.String() + "/bid"
	stranger := uuid.New()

	tests := []struct {
		name   string
		path   string
		user   *uuid.UUID
		body   string
		status int
		msg    string
	}{
		{name: "no_identity", path: bidPath, body: `{"amount": 150}`, status: http.StatusUnauthorized},
		{name: "malformed_json", path: bidPath, user: &poor, body: `{"amount":`, status: http.StatusBadRequest, msg: "invalid json"},
		{name: "non_positive_amount", path: bidPath, user: &poor, body: `{"amount": 0}`, status: http.StatusBadRequest, msg: bid.ErrInvalidAmount.Error()},
		{name: "sub_scale_amount", path: bidPath, user: &poor, body: `{"amount": "100.00001"}`, status: http.StatusBadRequest, msg: shared.ErrAmountScale.Error()},
		{name: "oversized_amount", path: bidPath, user: &poor, body: `{"amount": "10000000000000000"}`, status: http.StatusBadRequest, msg: shared.ErrAmountTooLarge.Error()},
		{name: "bad_item_id", path: "/items/nope/bid", user: &poor, body: `{"amount": 150}`, status: http.StatusBadRequest, msg: "invalid id"},
		{name: "unknown_item", path: "/items/" + uuid.NewString() + "/bid", user: &poor, body: `{"amount": 150}`, status: http.StatusNotFound, msg: shared.ErrItemNotFound.Error()},
		{name: "too_low", path: bidPath, user: &poor, body: `{"amount": 100}`, status: http.StatusBadRequest, msg: shared.ErrBidTooLow.Error()},
		{name: "insufficient_balance", path: bidPath, user: &poor, body: `{"amount": 150}`, status: http.StatusBadRequest, msg: shared.ErrInsufficientBalance.Error()},
		{name: "unknown_bidder", path: bidPath, user: &stranger, body: `{"amount": 150}`, status: http.StatusNotFound, msg: shared.ErrUserNotFound.Error()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tc.path, tc.user, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.msg != "" {
				assert.Equal(t, tc.msg, decodeError(t, rec).Msg)
			}
		})
	}
}

func TestPlaceBid_AfterEndTime(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")
	alice := f.createUser(t, "alice", "500")
	itemID := f.createItem(t, seller, "100", baseTime.Add(time.Hour))

	f.clock.Set(baseTime.Add(time.Hour))
	rec := f.do(t, http.MethodPost, "/items/"+itemID.String()+"/bid", &alice, `{"amount": 150}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrAuctionClosed.Error(), decodeError(t, rec).Msg)
}

func TestCloseAuction_Endpoint(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")
	alice := f.createUser(t, "alice", "500")
	itemID := f.createItem(t, seller, "100", baseTime.Add(time.Hour))
	closePath := "/items/" + itemID.String() + "/close"

	rec := f.do(t, http.MethodPost, "/items/"+itemID.String()+"/bid", &alice, `{"amount": 175}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, closePath, &alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, closePath, &seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrAuctionStillOpen.Error(), decodeError(t, rec).Msg)

	f.clock.Set(baseTime.Add(2 * time.Hour))
	rec = f.do(t, http.MethodPost, closePath, &seller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result shared.SettlementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotNil(t, result.WinnerID)
	assert.Equal(t, alice, *result.WinnerID)
	assert.True(t, result.FinalPrice.Equal(decimal.NewFromInt(175)))

	rec = f.do(t, http.MethodPost, closePath, &seller, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrAuctionAlreadyClosed.Error(), decodeError(t, rec).Msg)
}

func TestItemsAndUsers_Endpoints(t *testing.T) {
	f := newAPIFixture(t)
	seller := f.createUser(t, "seller", "0")

	rec := f.do(t, http.MethodPost, "/users", nil, map[string]string{"username": "SELLER"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/users", nil, map[string]string{"username": "default"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var user shared.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.True(t, user.Balance.Equal(decimal.NewFromInt(1000)))

	rec = f.do(t, http.MethodGet, "/users/"+uuid.NewString(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/items", &seller, map[string]string{
		"name": "Lamp", "description": "Brass", "starting_price": "10", "end_time": "tomorrow",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrInvalidTimeFormat.Error(), decodeError(t, rec).Msg)

	rec = f.do(t, http.MethodPost, "/items", &seller, map[string]string{
		"name": "Lamp", "description": "Brass", "starting_price": "0", "end_time": baseTime.Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/items", &seller, map[string]string{
		"name": "Lamp", "description": "Brass", "starting_price": "0.00001", "end_time": baseTime.Add(time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrAmountScale.Error(), decodeError(t, rec).Msg)

	rec = f.do(t, http.MethodPost, "/users", nil, map[string]string{"username": "precise", "balance": "1000.00001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, shared.ErrAmountScale.Error(), decodeError(t, rec).Msg)

	first := f.createItem(t, seller, "10", baseTime.Add(time.Hour))
	second := f.createItem(t, seller, "20", baseTime.Add(time.Hour))

	rec = f.do(t, http.MethodGet, "/items?page=1&page_size=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []item.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Contains(t, []uuid.UUID{first, second}, page[0].ID)

	rec = f.do(t, http.MethodGet, "/items/"+first.String()+"/bids/highest", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type mockSettlement struct {
	mock.Mock
}

func (m *mockSettlement) PlaceBid(ctx context.Context, req inbound.PlaceBidRequest) (*bid.Bid, error) {
	args := m.Called(ctx, req)
	b, _ := args.Get(0).(*bid.Bid)
	return b, args.Error(1)
}

func (m *mockSettlement) GetBids(ctx context.Context, itemID uuid.UUID) ([]*bid.Bid, error) {
	args := m.Called(ctx, itemID)
	bids, _ := args.Get(0).([]*bid.Bid)
	return bids, args.Error(1)
}

func (m *mockSettlement) GetHighestBid(ctx context.Context, itemID uuid.UUID) (*bid.Bid, error) {
	args := m.Called(ctx, itemID)
	b, _ := args.Get(0).(*bid.Bid)
	return b, args.Error(1)
}

func TestPlaceBid_StorageUnavailable(t *testing.T) {
	settlement := &mockSettlement{}
	settlement.On("PlaceBid", mock.Anything, mock.Anything).
		Return(nil, shared.Unavailable(errors.New("connection refused"))).Once()

	handler := NewHandler(HandlerParams{SettlementService: settlement, Logger: zerolog.Nop()})
	router := NewRouter(RouterParams{Handler: handler, Logger: zerolog.Nop()})

	bidder := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/items/"+uuid.NewString()+"/bid", bytes.NewBufferString(`{"amount": 10}`))
	req.Header.Set(UserIDHeader, bidder.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, shared.ErrStorageUnavailable.Error(), decodeError(t, rec).Msg)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	settlement.AssertExpectations(t)
}

func TestMapErrorToHTTP(t *testing.T) {
	itemID := uuid.New()
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "rejected_not_found", err: shared.Reject(shared.ErrItemNotFound, itemID, decimal.Zero, decimal.Zero), status: http.StatusNotFound},
		{name: "rejected_closed", err: shared.Reject(shared.ErrAuctionClosed, itemID, decimal.Zero, decimal.Zero), status: http.StatusBadRequest},
		{name: "storage", err: shared.Unavailable(shared.ErrLockTimeout), status: http.StatusInternalServerError},
		{name: "user_not_found", err: shared.ErrUserNotFound, status: http.StatusNotFound},
		{name: "not_seller", err: shared.ErrNotSeller, status: http.StatusForbidden},
		{name: "username_taken", err: shared.ErrUsernameTaken, status: http.StatusConflict},
		{name: "item_validation", err: item.ErrInvalidEndTime, status: http.StatusBadRequest},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := MapErrorToHTTP(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}
