package domain

import "scalp_go/pkg/quant"

// TradeRecord is one fill event reported by the venue. TradeID is globally
// unique per venue and is the deduplication key.
type TradeRecord struct {
	TradeID string          `json:"trade_id"`
	VenueID string          `json:"venue_id"`
	Price   quant.Price4    `json:"price,string"`
	Volume  quant.Lots      `json:"volume"`
	Ts      quant.TimeStamp `json:"ts,string"`
}
