package models

import (
	"encoding/json"
	"testing"
)

func TestPortfolioUnmarshal(t *testing.T) {
	raw := `{"portfolio":[{
		"ticker": "MSFT",
		"buy": {"date": {"year": 2023, "month": 2, "day": 1}, "price": 354.0},
		"quantity": 3
	},{
		"ticker": "SAP.DE",
		"buy":  {"date": {"year": 2022, "month": 6, "day": 10}, "price": 90.5},
		"sell": {"date": {"year": 2023, "month": 1, "day": 20}, "price": 105.0},
		"quantity": 12
	}]}`

	var p Portfolio
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Equities) != 2 {
		t.Fatalf("got %d equities, want 2", len(p.Equities))
	}

	open := p.Equities[0]
	if open.Ticker != "MSFT" || open.Quantity != 3 {
		t.Errorf("open position = %+v", open)
	}
	if open.Sell != nil {
		t.Error("open position should have nil Sell")
	}
	if open.Buy.Date != (Date{Year: 2023, Month: 2, Day: 1}) {
		t.Errorf("buy date = %+v", open.Buy.Date)
	}

	sold := p.Equities[1]
	if sold.Sell == nil {
		t.Fatal("sold position should have Sell")
	}
	if sold.Sell.Price != 105.0 {
		t.Errorf("sell price = %f", sold.Sell.Price)
	}
}

func TestOptionContractUnmarshal(t *testing.T) {
	raw := `{"type": "put", "underlying": 100, "strike": 110,
		"maturity": 2, "volatility": 0.3, "risk_free": 0.02,
		"market_price": 14.5}`

	var c OptionContract
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.Type != Put || c.Maturity != 2 {
		t.Errorf("contract = %+v", c)
	}
	if c.MarketPrice == nil || *c.MarketPrice != 14.5 {
		t.Errorf("market price = %v", c.MarketPrice)
	}

	var noMP OptionContract
	if err := json.Unmarshal([]byte(`{"type":"call","underlying":1,"strike":1,"maturity":1,"volatility":0.1}`), &noMP); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if noMP.MarketPrice != nil {
		t.Error("absent market_price should stay nil")
	}
}
