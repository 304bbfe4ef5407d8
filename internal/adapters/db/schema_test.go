package db

import (
	"fmt"
	"regexp"
	"testing"

	"bid-settlement-service/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_MoneyColumnsMatchDomainScale(t *testing.T) {
	columns := regexp.MustCompile(`(\w+)\s+NUMERIC\((\d+),\s*(\d+)\)`).FindAllStringSubmatch(schemaSQL, -1)
	require.Len(t, columns, 4, "balance, starting_price, current_price and amount")

	want := []string{fmt.Sprint(shared.MoneyPrecision), fmt.Sprint(shared.MoneyScale)}
	for _, column := range columns {
		assert.Equal(t, want, column[2:], "column %s", column[1])
	}
}
