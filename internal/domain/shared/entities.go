package shared

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a bidder or seller. Balance is the sole solvency gate for bidding.
type User struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewUser creates a user with a starting balance
func NewUser(username string, balance decimal.Decimal, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if balance.IsNegative() {
		return nil, ErrNegativeBalance
	}
	if err := CheckMoney(balance); err != nil {
		return nil, err
	}
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Balance:   balance,
		CreatedAt: now.UTC(),
	}, nil
}
