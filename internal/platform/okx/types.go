package okx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// TradesResponse is the envelope of GET /api/v5/market/trades.
type TradesResponse struct {
	Code string  `json:"code"`
	Msg  string  `json:"msg"`
	Data []Trade `json:"data"`
}

// Trade is one public fill. Side is the taker direction.
type Trade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"` // "buy" or "sell"
	Ts      string `json:"ts"`   // ms since epoch
}

// ToDomainTrade converts the wire format.
func (t Trade) ToDomainTrade() (domain.Trade, error) {
	ts, err := strconv.ParseInt(t.Ts, 10, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse ts %q: %w", t.Ts, err)
	}
	px, err := strconv.ParseFloat(t.Px, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse px %q: %w", t.Px, err)
	}
	sz, err := strconv.ParseFloat(t.Sz, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse sz %q: %w", t.Sz, err)
	}
	if px <= 0 || sz <= 0 {
		return domain.Trade{}, fmt.Errorf("non-positive px/sz %s/%s", t.Px, t.Sz)
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
		Time:         ts,
		Price:        px,
		Quantity:     sz,
		IsBuyerMaker: sellerTook,
		Exchange:     Name,
	}, nil
}

// InstID converts a canonical symbol such as BTCUSDT to OKX's BTC-USDT.
func InstID(symbol string) string {
	s := strings.ToUpper(symbol)
	if base, ok := strings.CutSuffix(s, "USDT"); ok && base != "" && !strings.HasSuffix(base, "-") {
		return base + "-USDT"
	}
	return s
}
