package models

// Portfolio is an ordered collection of equity positions. It has no
// identity beyond its composition and is treated as immutable once
// handed to the return engine.
type Portfolio struct {
	Equities []Equity `json:"portfolio"`
}

// Equity is a single buy (and optionally sell) position in an instrument.
// A nil Sell means the position is still open.
type Equity struct {
	Ticker   string       `json:"ticker"`
	Buy      Transaction  `json:"buy"`
	Sell     *Transaction `json:"sell,omitempty"`
	Quantity uint32       `json:"quantity"`
}

// Transaction records the date and per-unit price of a buy or sell,
// in the instrument's native currency.
type Transaction struct {
	Date  Date    `json:"date"`
	Price float64 `json:"price"`
}

// Date is a plain calendar date. It is not validated on construction;
// consumers reject dates that do not exist on the calendar.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}
