package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"bid-settlement-service/internal/domain/bid"
	"bid-settlement-service/internal/domain/item"
	"bid-settlement-service/internal/domain/shared"
)

const serverError = "Server Error"

var badRequestErrors = []error{
	shared.ErrAuctionClosed,
	shared.ErrBidTooLow,
	shared.ErrInsufficientBalance,
	shared.ErrAuctionStillOpen,
	shared.ErrAuctionAlreadyClosed,
	shared.ErrInvalidRequest,
	shared.ErrInvalidTimeFormat,
	shared.ErrUsernameRequired,
	shared.ErrNegativeBalance,
	shared.ErrAmountScale,
	shared.ErrAmountTooLarge,
	bid.ErrInvalidAmount,
	item.ErrNameRequired,
	item.ErrDescriptionRequired,
	item.ErrInvalidStartPrice,
	item.ErrInvalidEndTime,
	item.ErrSellerRequired,
}

// MapErrorToHTTP maps a service error to a status code and client message
func MapErrorToHTTP(err error) (int, string) {
	var rejection *shared.BidRejection
	if errors.As(err, &rejection) {
		if errors.Is(rejection.Reason, shared.ErrItemNotFound) {
			return http.StatusNotFound, rejection.Reason.Error()
		}
		return http.StatusBadRequest, rejection.Reason.Error()
	}

	if errors.Is(err, shared.ErrStorageUnavailable) {
		return http.StatusInternalServerError, shared.ErrStorageUnavailable.Error()
	}
	for _, target := range []error{shared.ErrItemNotFound, shared.ErrUserNotFound, shared.ErrNoBidsFound} {
		if errors.Is(err, target) {
			return http.StatusNotFound, target.Error()
		}
	}
	if errors.Is(err, shared.ErrNotSeller) {
		return http.StatusForbidden, shared.ErrNotSeller.Error()
	}
	if errors.Is(err, shared.ErrUsernameTaken) {
		return http.StatusConflict, shared.ErrUsernameTaken.Error()
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, target.Error()
		}
	}
	return http.StatusInternalServerError, serverError
}

type errorResponse struct {
	Msg          string `json:"msg"`
	CurrentPrice string `json:"current_price,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := MapErrorToHTTP(err)
	body := errorResponse{Msg: msg}

	var rejection *shared.BidRejection
	if errors.As(err, &rejection) && errors.Is(rejection.Reason, shared.ErrBidTooLow) {
		body.CurrentPrice = rejection.CurrentPrice.String()
	}

	if code >= http.StatusInternalServerError {
		// storage failures are safe to retry as a whole
		w.Header().Set("Retry-After", "1")
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Msg: msg})
}
