package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/observability"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{"EOS/ETH", Pair{From: "EOS", To: "ETH"}, false},
		{" eos/eth ", Pair{From: "EOS", To: "ETH"}, false},
		{"EOS", Pair{}, true},
		{"/ETH", Pair{}, true},
		{"EOS/", Pair{}, true},
	}

	for _, tt := range tests {
		got, err := ParsePair(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePair(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePair(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePair(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStatic_Quote(t *testing.T) {
	rates, err := ParseRates(map[string]string{"eos/eth": "12"})
	require.NoError(t, err)
	o := NewStatic(rates)

	rate, err := o.Quote(context.Background(), "EOS", "ETH", decimal.NewFromInt(132))
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(12)))

	_, err = o.Quote(context.Background(), "ETH", "EOS", decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, ErrNoQuote))
}

func TestParseRates_Invalid(t *testing.T) {
	_, err := ParseRates(map[string]string{"EOS/ETH": "abc"})
	assert.Error(t, err)

	_, err = ParseRates(map[string]string{"EOS/ETH": "0"})
	assert.True(t, errors.Is(err, ErrNoQuote))

	_, err = ParseRates(map[string]string{"EOSETH": "1"})
	assert.Error(t, err)
}

func TestInstrumented_RecordsQuotes(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	o := Instrument(NewStatic(map[Pair]decimal.Decimal{eosEth: decimal.NewFromInt(12)}), "static", m, nil)

	_, err := o.Quote(context.Background(), "EOS", "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = o.Quote(context.Background(), "ETH", "EOS", decimal.NewFromInt(1))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OracleQuoteErrors.WithLabelValues("static")))
}

func TestFromConfig(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())

	o, closer, err := FromConfig(context.Background(), config.OracleConfig{
		Kind:  config.OracleStub,
		Rates: map[string]string{"EOS/ETH": "12"},
	}, m, nil)
	require.NoError(t, err)
	defer closer.Close()

	rate, err := o.Quote(context.Background(), "EOS", "ETH", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(12)))

	o, closer, err = FromConfig(context.Background(), config.OracleConfig{
		Kind:     config.OracleRPC,
		Endpoint: "http://127.0.0.1:1",
	}, m, nil)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	assert.NotNil(t, o)

	_, _, err = FromConfig(context.Background(), config.OracleConfig{Kind: "chainlink"}, m, nil)
	assert.Error(t, err)
}
