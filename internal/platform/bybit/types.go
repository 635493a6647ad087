package bybit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// RecentTradeResponse is the envelope of GET /v5/market/recent-trade.
type RecentTradeResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string        `json:"category"`
		List     []RecentTrade `json:"list"`
	} `json:"result"`
}

// RecentTrade is one public trade. Side is the taker side.
type RecentTrade struct {
	ExecID       string `json:"execId"`
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Side         string `json:"side"` // "Buy" or "Sell"
	Time         string `json:"time"` // ms since epoch
	IsBlockTrade bool   `json:"isBlockTrade"`
}

// ToDomainTrade converts the wire format. A "Sell" taker means the resting
// order was a bid, so IsBuyerMaker is set.
func (rt RecentTrade) ToDomainTrade() (domain.Trade, error) {
	ts, err := strconv.ParseInt(rt.Time, 10, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse time %q: %w", rt.Time, err)
	}
	price, err := strconv.ParseFloat(rt.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", rt.Price, err)
	}
	size, err := strconv.ParseFloat(rt.Size, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse size %q: %w", rt.Size, err)
	}
	if price <= 0 || size <= 0 {
		return domain.Trade{}, fmt.Errorf("non-positive price/size %s/%s", rt.Price, rt.Size)
	}

	var sellerTook bool
	switch strings.ToLower(rt.Side) {
	case "sell":
		sellerTook = true
	case "buy":
	default:
		return domain.Trade{}, fmt.Errorf("unknown side %q", rt.Side)
	}

	return domain.Trade{
		Time:         ts,
		Price:        price,
		Quantity:     size,
		IsBuyerMaker: sellerTook,
		Exchange:     Name,
	}, nil
}
