// Package returns computes a currency-normalized, calendar-aligned,
// time-weighted cumulative return curve for a portfolio of equity
// positions, from daily quote history supplied by a quote source.
//
// The curve chains day-over-day valuation ratios, so it controls for the
// timing and size of cash flows: portfolios bought at different times and
// in different amounts stay comparable.
package returns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfolio/folio/pkg/models"
	"github.com/openfolio/folio/pkg/utils"
)

// ErrInvalidDate is returned when a transaction date does not exist on
// the calendar (e.g. day 31 of a 30-day month). It aborts the whole
// computation; dates are never clamped or guessed.
var ErrInvalidDate = errors.New("transaction date is not a valid calendar date")

// QuoteSource supplies historical quote data and point-in-time FX rates.
// *quote.Client satisfies it.
type QuoteSource interface {
	// FetchQuotes returns the USD-normalized daily series for ticker
	// over [start, end].
	FetchQuotes(ctx context.Context, ticker string, start, end time.Time) ([]models.Quote, error)

	// FXRate resolves the USD exchange rate of ticker's native currency
	// at a point in time, 1.0 when the currency is USD or unknown.
	FXRate(ctx context.Context, ticker string, date time.Time) (float64, error)
}

// Engine computes portfolio return curves. It holds no per-request
// state and is safe for concurrent independent invocations.
type Engine struct {
	src QuoteSource
	now func() time.Time
}

// NewEngine creates a return engine over the given quote source.
func NewEngine(src QuoteSource) *Engine {
	return &Engine{src: src, now: time.Now}
}

// position is one instrument's valuation on one day: per-unit value at
// day start (already in USD) and at day end.
type position struct {
	oldPrice float64
	price    float64
	quantity float64
}

// calendar is the ordered set of distinct trading dates observed across
// the whole portfolio, with O(1) position lookup by day key.
type calendar struct {
	days  []string
	index map[string]int
}

// dateRange is an equity's quote query window.
type dateRange struct {
	start time.Time
	end   time.Time
}

// equityRange derives the query window for one equity: midnight UTC of
// the buy date through 23:59:59 UTC of the sell date, or now for open
// positions.
func equityRange(eq *models.Equity, now func() time.Time) (dateRange, error) {
	start, err := dateAtMidnight(eq.Buy.Date)
	if err != nil {
		return dateRange{}, err
	}
	end := now().UTC()
	if eq.Sell != nil {
		end, err = dateAtEndOfDay(eq.Sell.Date)
		if err != nil {
			return dateRange{}, err
		}
	}
	return dateRange{start: start, end: end}, nil
}

func dateAtMidnight(d models.Date) (time.Time, error) {
	if err := validateDate(d); err != nil {
		return time.Time{}, err
	}
	return utils.Midnight(d.Year, time.Month(d.Month), d.Day), nil
}

func dateAtEndOfDay(d models.Date) (time.Time, error) {
	if err := validateDate(d); err != nil {
		return time.Time{}, err
	}
	return utils.EndOfDay(d.Year, time.Month(d.Month), d.Day), nil
}

// validateDate rejects dates that time.Date would silently normalize.
func validateDate(d models.Date) error {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, d.Year, d.Month, d.Day)
	}
	t := utils.Midnight(d.Year, time.Month(d.Month), d.Day)
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, d.Year, d.Month, d.Day)
	}
	return nil
}

// buildCalendar fetches every equity's series over the portfolio-wide
// [min(start), max(end)] window and collects the union of calendar
// dates. This global calendar is the reconciliation key for gap
// backfill: a date one instrument trades and another skips must still
// carry both instruments' capital.
func (e *Engine) buildCalendar(ctx context.Context, p *models.Portfolio, ranges []dateRange) (*calendar, error) {
	start, end := ranges[0].start, ranges[0].end
	for _, r := range ranges[1:] {
		if r.start.Before(start) {
			start = r.start
		}
		if r.end.After(end) {
			end = r.end
		}
	}

	series := make([][]models.Quote, len(p.Equities))
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.Equities {
		g.Go(func() error {
			quotes, err := e.src.FetchQuotes(gctx, p.Equities[i].Ticker, start, end)
			if err != nil {
				return err
			}
			series[i] = quotes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, quotes := range series {
		for _, q := range quotes {
			seen[utils.DayKey(q.Timestamp)] = struct{}{}
		}
	}

	cal := &calendar{
		days:  make([]string, 0, len(seen)),
		index: make(map[string]int, len(seen)),
	}
	for day := range seen {
		cal.days = append(cal.days, day)
	}
	sort.Strings(cal.days)
	for i, day := range cal.days {
		cal.index[day] = i
	}
	return cal, nil
}

// TotalReturns computes the cumulative percentage return curve for the
// portfolio. Keys are YYYY-MM-DD dates; values are the percentage gain
// since inception through that date. encoding/json emits map keys in
// sorted order, so the serialized form is an ordered date mapping.
//
// Any fetch or date failure aborts the whole computation; no partial
// results are returned.
func (e *Engine) TotalReturns(ctx context.Context, p *models.Portfolio) (map[string]float64, error) {
	if len(p.Equities) == 0 {
		return map[string]float64{}, nil
	}

	ranges := make([]dateRange, len(p.Equities))
	for i := range p.Equities {
		r, err := equityRange(&p.Equities[i], e.now)
		if err != nil {
			return nil, err
		}
		ranges[i] = r
	}

	cal, err := e.buildCalendar(ctx, p, ranges)
	if err != nil {
		return nil, err
	}

	positions := make(map[string][]position)
	for i := range p.Equities {
		if err := e.accumulate(ctx, &p.Equities[i], ranges[i], cal, positions); err != nil {
			return nil, err
		}
	}

	return foldCumulative(positions), nil
}

// accumulate walks one equity's quote series in date order and appends
// its per-day positions, including flat backfill entries for global
// calendar dates the instrument skipped.
func (e *Engine) accumulate(ctx context.Context, eq *models.Equity, r dateRange, cal *calendar, positions map[string][]position) error {
	startFX, err := e.src.FXRate(ctx, eq.Ticker, r.start)
	if err != nil {
		return err
	}
	endFX, err := e.src.FXRate(ctx, eq.Ticker, r.end)
	if err != nil {
		return err
	}

	quotes, err := e.src.FetchQuotes(ctx, eq.Ticker, r.start, r.end)
	if err != nil {
		return err
	}

	qty := float64(eq.Quantity)

	// Buy price in USD at the buy date; carried forward day over day.
	carry := eq.Buy.Price * startFX

	var sellUSD *float64
	if eq.Sell != nil {
		v := eq.Sell.Price * endFX
		sellUSD = &v
	}

	prevIdx := -1
	for i, q := range quotes {
		day := utils.DayKey(q.Timestamp)
		idx, onCalendar := cal.index[day]

		// Dates between this quote and the previous one that other
		// instruments (or an FX pair) traded get a flat no-change
		// position, so this equity neither adds spurious gain nor
		// drops out of the capital base.
		if onCalendar && prevIdx >= 0 && idx-prevIdx > 1 {
			flat := carry * q.Close / q.AdjClose
			for _, missing := range cal.days[prevIdx+1 : idx] {
				positions[missing] = append(positions[missing], position{
					oldPrice: flat,
					price:    flat,
					quantity: qty,
				})
			}
		}

		var pos position
		switch {
		case i == len(quotes)-1:
			// Boundary days rescale by close/adjclose so the literal
			// buy/sell price is comparable to the provider's
			// retroactively adjusted series.
			pos = position{
				oldPrice: carry * q.Close / q.AdjClose,
				price:    q.AdjClose,
				quantity: qty,
			}
			if sellUSD != nil {
				pos.price = *sellUSD * q.Close / q.AdjClose
			}
		case i == 0:
			pos = position{
				oldPrice: carry * q.Close / q.AdjClose,
				price:    q.Close * startFX * q.Close / q.AdjClose,
				quantity: qty,
			}
		default:
			pos = position{
				oldPrice: carry,
				price:    q.AdjClose,
				quantity: qty,
			}
		}
		positions[day] = append(positions[day], pos)

		// The value carried into the next day is this day's adjusted
		// close, except into the final day, which starts from the close
		// re-expressed at the end-date FX rate.
		if i == len(quotes)-2 {
			carry = q.Close * endFX
		} else {
			carry = q.AdjClose
		}
		if onCalendar {
			prevIdx = idx
		}
	}
	return nil
}

// foldCumulative aggregates the per-day positions into day rates and
// chains them into the cumulative percentage curve.
func foldCumulative(positions map[string][]position) map[string]float64 {
	days := make([]string, 0, len(positions))
	for day := range positions {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make(map[string]float64, len(days))
	cumulative := 1.0
	for _, day := range days {
		var capital, value float64
		for _, pos := range positions[day] {
			capital += pos.oldPrice * pos.quantity
			value += pos.price * pos.quantity
		}
		cumulative *= value / capital
		out[day] = (cumulative - 1.0) * 100.0
	}
	return out
}
