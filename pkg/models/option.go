package models

// Option contract types.
const (
	Call = "call"
	Put  = "put"
)

// OptionContract describes a European-style option to be valued.
// MarketPrice is only needed for the Kelly fraction and may be nil.
type OptionContract struct {
	Type        string   `json:"type"` // "call" or "put"
	Underlying  float64  `json:"underlying"`
	Strike      float64  `json:"strike"`
	Maturity    int      `json:"maturity"` // years to expiry
	Volatility  float64  `json:"volatility"`
	RiskFree    float64  `json:"risk_free"`
	MarketPrice *float64 `json:"market_price,omitempty"`
}
