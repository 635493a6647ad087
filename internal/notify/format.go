package notify

import (
	"fmt"
	"math"
	"strings"

	"github.com/alanyoungcy/twapwatch/internal/domain"
)

// FormatUSD renders v with a K or M suffix: $1.25M, $12.50K, $950.00.
func FormatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%s$%.2fM", sign, v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("%s$%.2fK", sign, v/1_000)
	default:
		return fmt.Sprintf("%s$%.2f", sign, v)
	}
}

// VolumeCategory buckets an hourly algo volume.
func VolumeCategory(perHour float64) string {
	switch {
	case perHour >= 1_000_000:
		return "high"
	case perHour >= 500_000:
		return "medium"
	case perHour >= 1_000:
		return "low"
	default:
		return "very low"
	}
}

// ReportTitle is the alert title for r.
func ReportTitle(r domain.TWAPReport) string {
	return fmt.Sprintf("TWAP %s on %s (%dm)", strings.ToLower(string(r.DominantDirection)), r.Symbol, r.WindowMinutes)
}

// FormatReport renders a plain-text summary of r.
func FormatReport(r domain.TWAPReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Direction: %s\n", r.DominantDirection)
	if len(r.BuyExchanges) > 0 {
		fmt.Fprintf(&b, "Buying: %s\n", strings.Join(r.BuyExchanges, ", "))
	}
	if len(r.SellExchanges) > 0 {
		fmt.Fprintf(&b, "Selling: %s\n", strings.Join(r.SellExchanges, ", "))
	}

	perHour := r.AlgoVolumePerHour()
	fmt.Fprintf(&b, "Algo volume: %s (%s/h, %s)\n",
		FormatUSD(r.TotalAlgoVolumeUSD), FormatUSD(perHour), VolumeCategory(perHour))
	fmt.Fprintf(&b, "Net flow: %s\n", FormatUSD(r.TotalNetFlowUSD))

	total := r.TotalVolumeUSD()
	fmt.Fprintf(&b, "Total volume: %s", FormatUSD(total))
	if total > 0 {
		var buy float64
		for _, ex := range r.Exchanges {
			buy += ex.BuyVolumeUSD
		}
		buyPct := buy / total * 100
		fmt.Fprintf(&b, " (buy %.1f%% | sell %.1f%%)", buyPct, 100-buyPct)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Avg score: %.2f | Sync: %.0f%%", r.AvgAlgoScore, math.Round(r.SynchronizationScore*100))
	return b.String()
}
