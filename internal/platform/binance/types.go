package binance

import (
	"fmt"
	"strconv"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// AggTrade is one entry of GET /api/v3/aggTrades.
type AggTrade struct {
	AggID        int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstID      int64  `json:"f"`
	LastID       int64  `json:"l"`
	Time         int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// ToDomainTrade converts the wire format. The "m" flag is Binance's
// buyer-is-maker flag and maps through unchanged.
func (a AggTrade) ToDomainTrade() (domain.Trade, error) {
	price, err := strconv.ParseFloat(a.Price, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse price %q: %w", a.Price, err)
	}
	qty, err := strconv.ParseFloat(a.Quantity, 64)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("parse qty %q: %w", a.Quantity, err)
	}
	if price <= 0 || qty <= 0 {
		return domain.Trade{}, fmt.Errorf("non-positive price/qty %s/%s", a.Price, a.Quantity)
	}
	return domain.Trade{
		Time:         a.Time,
		Price:        price,
		Quantity:     qty,
		IsBuyerMaker: a.IsBuyerMaker,
		Exchange:     Name,
	}, nil
}
