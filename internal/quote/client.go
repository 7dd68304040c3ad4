// Package quote fetches historical daily price data from a Yahoo-style
// chart API and normalizes non-USD series to USD using the matching
// foreign-exchange pair.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openfolio/folio/pkg/models"
	"github.com/openfolio/folio/pkg/utils"
)

// Defaults for a client constructed from a zero-valued Options.
const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"

	// The upstream service rate-limits or blocks default HTTP client
	// signatures; identifying as a generic tool is mandatory request
	// shaping, not a nicety.
	DefaultUserAgent = "curl/8.5.0"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	CacheTTL   time.Duration
	RatePerSec int
}

// Client is a quote provider over the upstream chart endpoint. It is
// stateless apart from its response cache and safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cache      *chartCache
	limiter    *rateLimiter
	now        func() time.Time
}

// NewClient creates a quote provider with the given options.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    opts.BaseURL,
		userAgent:  opts.UserAgent,
		cache:      newChartCache(opts.CacheTTL),
		limiter:    newRateLimiter(opts.RatePerSec, time.Second),
		now:        time.Now,
	}
}

// --- Chart API envelope ---

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta  `json:"meta"`
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type chartMeta struct {
	Currency       string `json:"currency"`
	Symbol         string `json:"symbol"`
	ExchangeName   string `json:"exchangeName"`
	InstrumentType string `json:"instrumentType"`
}

type indicators struct {
	Quote    []ohlcv    `json:"quote"`
	AdjClose []adjClose `json:"adjclose"`
}

// Per-field arrays are pointer slices: upstream marks missing values null.
type ohlcv struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type adjClose struct {
	AdjClose []*float64 `json:"adjclose"`
}

// checkConsistency validates a chart block before any quote is
// materialized: every parallel array must match the timestamp array in
// length, and the block must not be empty.
func checkConsistency(block *chartResult) error {
	n := len(block.Timestamp)
	if n == 0 {
		return ErrEmptyDataSet
	}
	if len(block.Indicators.Quote) == 0 {
		return fmt.Errorf("%w: missing quote indicators", ErrProvider)
	}
	q := block.Indicators.Quote[0]
	if len(q.Open) != n || len(q.High) != n || len(q.Low) != n ||
		len(q.Close) != n || len(q.Volume) != n {
		return ErrDataInconsistency
	}
	if len(block.Indicators.AdjClose) > 0 && len(block.Indicators.AdjClose[0].AdjClose) != n {
		return ErrDataInconsistency
	}
	return nil
}

// quotes projects a validated block into Quote values. An index whose
// close is null is skipped, not substituted; other null fields default
// to zero, and a wholly absent adjclose block yields AdjClose 0.
func (b *chartResult) quotes() []models.Quote {
	q := b.Indicators.Quote[0]
	var adj []*float64
	if len(b.Indicators.AdjClose) > 0 {
		adj = b.Indicators.AdjClose[0].AdjClose
	}

	out := make([]models.Quote, 0, len(b.Timestamp))
	for i, ts := range b.Timestamp {
		if q.Close[i] == nil {
			continue
		}
		quote := models.Quote{Timestamp: ts, Close: *q.Close[i]}
		if q.Open[i] != nil {
			quote.Open = *q.Open[i]
		}
		if q.High[i] != nil {
			quote.High = *q.High[i]
		}
		if q.Low[i] != nil {
			quote.Low = *q.Low[i]
		}
		if q.Volume[i] != nil {
			quote.Volume = *q.Volume[i]
		}
		if adj != nil && adj[i] != nil {
			quote.AdjClose = *adj[i]
		}
		out = append(out, quote)
	}
	return out
}

func (b *chartResult) metadata() models.ChartMeta {
	return models.ChartMeta{
		Currency:       b.Meta.Currency,
		Symbol:         b.Meta.Symbol,
		Exchange:       b.Meta.ExchangeName,
		InstrumentType: b.Meta.InstrumentType,
	}
}

// --- Fetching ---

// fetchChart issues a single GET for a daily-interval chart over
// [start, end] and returns the validated first result block. One request
// per call; no batching, no retries.
func (c *Client) fetchChart(ctx context.Context, symbol string, start, end time.Time) (*chartResult, error) {
	key := fmt.Sprintf("%s:%d:%d", symbol, start.Unix(), end.Unix())
	if block, ok := c.cache.get(key); ok {
		return block, nil
	}

	if err := c.limiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	u := fmt.Sprintf(
		"%s/v8/finance/chart/%s?symbol=%s&period1=%d&period2=%d&interval=1d&events=div%%7Csplit%%7CcapitalGains",
		c.baseURL, url.PathEscape(symbol), url.QueryEscape(symbol), start.Unix(), end.Unix(),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	var envelope chartResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	if envelope.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrProvider, envelope.Chart.Error.Description)
	}
	if len(envelope.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: no chart result", ErrProvider)
	}

	for i := range envelope.Chart.Result {
		if err := checkConsistency(&envelope.Chart.Result[i]); err != nil {
			return nil, err
		}
	}

	block := &envelope.Chart.Result[0]
	c.cache.set(key, block)
	return block, nil
}

// FetchQuotes returns the daily quote series for ticker over [start, end],
// with AdjClose converted to USD when the instrument trades in another
// currency. Only AdjClose is converted; open/high/low/close stay in the
// native currency, which callers needing normalized OHLC must handle
// themselves.
func (c *Client) FetchQuotes(ctx context.Context, ticker string, start, end time.Time) ([]models.Quote, error) {
	block, err := c.fetchChart(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}
	native := block.quotes()

	currency := block.Meta.Currency
	if currency == "" {
		return nil, fmt.Errorf("%w: missing currency in metadata", ErrProvider)
	}
	if currency == "USD" {
		return native, nil
	}

	fxBlock, err := c.fetchChart(ctx, currency+"=X", start, end)
	if err != nil {
		return nil, err
	}
	fxQuotes := fxBlock.quotes()
	if len(fxQuotes) == 0 {
		return nil, ErrEmptyDataSet
	}

	// FX and equity sessions close at different times, so rates are
	// matched by calendar date. A day with no FX quote uses the most
	// recent quote of the fetched range, a documented approximation.
	byDay := make(map[string]float64, len(fxQuotes))
	for _, f := range fxQuotes {
		byDay[utils.DayKey(f.Timestamp)] = f.AdjClose
	}
	fallback := fxQuotes[len(fxQuotes)-1].AdjClose

	usd := make([]models.Quote, len(native))
	for i, q := range native {
		rate, ok := byDay[utils.DayKey(q.Timestamp)]
		if !ok {
			rate = fallback
		}
		q.AdjClose *= rate
		usd[i] = q
	}
	return usd, nil
}

// Metadata returns the instrument metadata from a current chart fetch.
func (c *Client) Metadata(ctx context.Context, ticker string) (models.ChartMeta, error) {
	now := c.now()
	block, err := c.fetchChart(ctx, ticker, now, now)
	if err != nil {
		return models.ChartMeta{}, err
	}
	return block.metadata(), nil
}

// FXRate resolves the USD exchange rate of ticker's currency at a point
// in time. If the currency cannot be determined, or the instrument
// already trades in USD, the rate is 1.0; that fallback is deliberate
// and never an error.
func (c *Client) FXRate(ctx context.Context, ticker string, date time.Time) (float64, error) {
	now := c.now()
	block, err := c.fetchChart(ctx, ticker, now, now)
	if err != nil {
		return 1.0, nil
	}
	currency := block.Meta.Currency
	if currency == "" || currency == "USD" {
		return 1.0, nil
	}
	return c.fxCloseAt(ctx, currency, date)
}

// fxCloseAt fetches the FX pair for a single day and returns its first close.
func (c *Client) fxCloseAt(ctx context.Context, currency string, date time.Time) (float64, error) {
	block, err := c.fetchChart(ctx, currency+"=X", date, date)
	if err != nil {
		return 0, err
	}
	quotes := block.quotes()
	if len(quotes) == 0 {
		return 0, fmt.Errorf("%w: no usable FX quote for %s", ErrProvider, currency)
	}
	return quotes[0].Close, nil
}
