package quant

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Price4 represents a limit or fill price multiplied by 10,000 (10^4).
// E.g., 2345.5 CNY = 23,455,000 Price4. Futures ticks are far coarser than
// 1e-4, so the scale never truncates a venue price.
type Price4 int64

// Lots represents a whole number of contracts.
type Lots int64

// TimeStamp represents Unix Microseconds.
type TimeStamp int64

// PriceScale is the fixed-point scale of Price4.
const PriceScale = 10000

// ToPrice4 converts a float64 (from external API) to Price4.
// Only used at the boundary. Internal logic compares Price4 directly.
func ToPrice4(f float64) Price4 {
	return Price4(math.Round(f * PriceScale))
}

// Float returns the price as a float64 for display only.
func (p Price4) Float() float64 {
	return float64(p) / PriceScale
}

// String formats the price from the int64 representation directly; values
// beyond float64's 53-bit mantissa still print exactly.
func (p Price4) String() string {
	v := int64(p)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / PriceScale
	frac := v % PriceScale
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	// Zero-padded to four digits, trailing zeros trimmed.
	digits := strings.TrimRight(strconv.FormatInt(frac+PriceScale, 10)[1:], "0")
	return sign + strconv.FormatInt(whole, 10) + "." + digits
}

func (v Lots) String() string {
	return strconv.FormatInt(int64(v), 10)
}

// NextSeq generates the next event sequence number atomically. Gateway
// workers share one counter so the loop sees a gapless stream.
func NextSeq(ptr *uint64) uint64 {
	return atomic.AddUint64(ptr, 1)
}

// ParseTimeStamp converts a millisecond string to TimeStamp (micros).
func ParseTimeStamp(s string) (TimeStamp, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return TimeStamp(ms * 1000), nil
}
