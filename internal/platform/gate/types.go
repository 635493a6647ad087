package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// Millis decodes create_time_ms, which Gate sends either as a JSON number or
// as a decimal string with a fractional part ("1548000000123.456").
type Millis int64

// UnmarshalJSON accepts both encodings.
func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("gate: parse create_time_ms %q: %w", b, err)
	}
	*m = Millis(int64(f))
	return nil
}

// Trade is one entry of GET /api/v4/spot/trades. Side is the taker side.
type Trade struct {
	ID           string `json:"id"`
	CreateTimeMs Millis `json:"create_time_ms"`
	CurrencyPair string `json:"currency_pair"`
	Side         string `json:"side"` // "buy" or "sell"
	Amount       string `json:"amount"`
	Price        string `json:"price"`
}

// ToDomainTrade converts the wire format.
func (t Trade) ToDomainTrade() (domain.Trade, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", t.Price, err)
	}
	amount, err := strconv.ParseFloat(t.Amount, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse amount %q: %w", t.Amount, err)
	}
	if price <= 0 || amount <= 0 {
		return domain.Trade{}, fmt.Errorf("non-positive price/amount %s/%s", t.Price, t.Amount)
	}

	var sellerTook bool
	switch strings.ToLower(t.Side) {
	case "sell":
		sellerTook = true
	case "buy":
	default:
		return domain.Trade{}, fmt.Errorf("unknown side %q", t.Side)
	}

	return domain.Trade{
		Time:         int64(t.CreateTimeMs),
		Price:        price,
		Quantity:     amount,
		IsBuyerMaker: sellerTook,
		Exchange:     Name,
	}, nil
}

// CurrencyPair converts a canonical symbol such as BTCUSDT to Gate's BTC_USDT.
func CurrencyPair(symbol string) string {
	s := strings.ToUpper(symbol)
	if base, ok := strings.CutSuffix(s, "USDT"); ok && base != "" && !strings.HasSuffix(base, "_") {
		return base + "_USDT"
	}
	return s
}

var _ json.Unmarshaler = (*Millis)(nil)
