// Package models defines the core data structures shared across folio.
package models

// Quote is a single trading day's record for an instrument, in the
// instrument's native currency except for AdjClose, which the quote
// provider converts to USD for non-USD instruments.
type Quote struct {
	Timestamp int64   `json:"timestamp"` // seconds since epoch, provider session time
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    int64   `json:"volume"`
	Close     float64 `json:"close"`
	AdjClose  float64 `json:"adjclose"`
}

// ChartMeta holds the instrument metadata returned alongside a quote series.
type ChartMeta struct {
	Currency       string `json:"currency"`
	Symbol         string `json:"symbol"`
	Exchange       string `json:"exchange"`
	InstrumentType string `json:"instrument_type"`
}
