package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/oracle"
	"nomisma-settlement/internal/oracle/stub"
)

// warmingOracle has no quote until it has been asked n times.
type warmingOracle struct {
	n     int
	calls int
}

func (w *warmingOracle) Quote(_ context.Context, _, _ domain.AssetCode, _ decimal.Decimal) (decimal.Decimal, error) {
	w.calls++
	if w.calls <= w.n {
		return decimal.Zero, oracle.ErrNoQuote
	}
	return decimal.NewFromInt(12), nil
}

func TestQuote_SingleShot(t *testing.T) {
	q := stub.New()
	q.SetRate("EOS", "ETH", decimal.NewFromInt(12))

	rate, err := quote(context.Background(), q, config.OracleStub, "EOS", "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "12", rate.String())

	_, err = quote(context.Background(), q, config.OracleRPC, "ETH", "EOS", decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, oracle.ErrNoQuote))
}

func TestQuote_WaitsForFeed(t *testing.T) {
	w := &warmingOracle{n: 2}
	rate, err := quote(context.Background(), w, config.OracleWS, "EOS", "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, "12", rate.String())
	assert.Equal(t, 3, w.calls)
}

func TestQuote_FeedDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := quote(ctx, &warmingOracle{n: 1000}, config.OracleWS, "EOS", "ETH", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
