package bid

import (
	"testing"
	"time"

	"bid-settlement-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{name: "whole", amount: "150"},
		{name: "four_decimals", amount: "100.0001"},
		{name: "zero", amount: "0", wantErr: ErrInvalidAmount},
		{name: "negative", amount: "-5", wantErr: ErrInvalidAmount},
		{name: "five_decimals", amount: "100.00001", wantErr: shared.ErrAmountScale},
		{name: "oversized", amount: "10000000000000000", wantErr: shared.ErrAmountTooLarge},
	}

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			b, err := New(uuid.New(), uuid.New(), amount, at)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.True(t, b.Amount.Equal(amount))
			assert.Equal(t, time.UTC, b.CreatedAt.Location())
		})
	}
}
