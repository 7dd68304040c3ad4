// folio — portfolio return engine and option valuation toolkit.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfolio/folio/api"
	"github.com/openfolio/folio/internal/config"
	"github.com/openfolio/folio/internal/options"
	"github.com/openfolio/folio/internal/quote"
	"github.com/openfolio/folio/internal/returns"
	"github.com/openfolio/folio/pkg/models"
	"github.com/openfolio/folio/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "folio — portfolio returns and option valuation",
	Long: `folio computes currency-normalized, time-weighted portfolio return
curves from daily market data, and values European option contracts
with Black-Scholes, Monte-Carlo simulation, and the Kelly criterion.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(returnsCmd)
	rootCmd.AddCommand(optionsCmd)
	rootCmd.AddCommand(quotesCmd)
	rootCmd.AddCommand(statusCmd)
}

// newQuoteClient builds the quote provider from config.
func newQuoteClient() *quote.Client {
	return quote.NewClient(quote.Options{
		BaseURL:    cfg.Quote.BaseURL,
		UserAgent:  cfg.Quote.UserAgent,
		Timeout:    time.Duration(cfg.Quote.TimeoutSec) * time.Second,
		CacheTTL:   time.Duration(cfg.Quote.CacheTTLSec) * time.Second,
		RatePerSec: cfg.Quote.RatePerSec,
	})
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("folio %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newQuoteClient()
		engine := returns.NewEngine(client)
		srv := api.NewServer(cfg, engine, client)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("Starting folio API server on %s\n", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Returns Command ---

var returnsCmd = &cobra.Command{
	Use:   "returns [portfolio.json]",
	Short: "Compute the cumulative return curve for a portfolio",
	Long: `Compute the time-weighted cumulative percentage return curve for a
portfolio described in a JSON file:

  {"portfolio": [
    {"ticker": "AAPL",
     "buy":  {"date": {"year": 2024, "month": 1, "day": 15}, "price": 185.92},
     "quantity": 10}
  ]}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read portfolio file: %w", err)
		}
		var portfolio models.Portfolio
		if err := json.Unmarshal(data, &portfolio); err != nil {
			return fmt.Errorf("failed to parse portfolio file: %w", err)
		}

		engine := returns.NewEngine(newQuoteClient())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		curve, err := engine.TotalReturns(ctx, &portfolio)
		if err != nil {
			return err
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return json.NewEncoder(os.Stdout).Encode(curve)
		}

		days := make([]string, 0, len(curve))
		for day := range curve {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			fmt.Printf("%s  %+8.4f%%\n", day, curve[day])
		}
		return nil
	},
}

func init() {
	returnsCmd.Flags().Bool("json", false, "emit the curve as JSON")
}

// --- Options Command ---

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Value an option contract",
}

func init() {
	optionsCmd.AddCommand(bsCmd)
	optionsCmd.AddCommand(kellyCmd)
	optionsCmd.AddCommand(mcCmd)
	mcCmd.Flags().Int("n", 0, "number of simulations (default from config)")
	mcCmd.Flags().Uint64("seed", 0, "random seed (0 = from clock)")
}

// readContract parses an option contract JSON file:
//
//	{"type": "call", "underlying": 100, "strike": 110,
//	 "maturity": 1, "volatility": 0.2, "risk_free": 0.05,
//	 "market_price": 4.50}
func readContract(path string) (models.OptionContract, error) {
	var c models.OptionContract
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read contract file: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse contract file: %w", err)
	}
	if c.Type == "" {
		c.Type = models.Call
	}
	return c, nil
}

var bsCmd = &cobra.Command{
	Use:   "bs [contract.json]",
	Short: "Black-Scholes price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContract(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%.6f\n", options.Price(c))
		return nil
	},
}

var kellyCmd = &cobra.Command{
	Use:   "kelly [contract.json]",
	Short: "Kelly betting fraction against the market price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContract(args[0])
		if err != nil {
			return err
		}
		fraction, err := options.KellyRatio(c)
		if err != nil {
			return err
		}
		fmt.Printf("%.6f\n", fraction)
		return nil
	},
}

var mcCmd = &cobra.Command{
	Use:   "mc [contract.json]",
	Short: "Monte-Carlo expected value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := readContract(args[0])
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("n")
		if n <= 0 {
			n = cfg.Options.Simulations
		}
		seed, _ := cmd.Flags().GetUint64("seed")
		fmt.Printf("%.6f\n", options.MonteCarlo(c, n, seed))
		return nil
	},
}

// --- Quotes Command ---

var quotesCmd = &cobra.Command{
	Use:   "quotes [ticker]",
	Short: "Fetch the USD-normalized daily quote series for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromStr, _ := cmd.Flags().GetString("from")
		toStr, _ := cmd.Flags().GetString("to")

		from, err := time.Parse(utils.DayLayout, fromStr)
		if err != nil {
			return fmt.Errorf("invalid --from date %q; use YYYY-MM-DD", fromStr)
		}
		to := time.Now().UTC()
		if toStr != "" {
			to, err = time.Parse(utils.DayLayout, toStr)
			if err != nil {
				return fmt.Errorf("invalid --to date %q; use YYYY-MM-DD", toStr)
			}
		}

		client := newQuoteClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		quotes, err := client.FetchQuotes(ctx, args[0], from, to)
		if err != nil {
			return err
		}
		for _, q := range quotes {
			fmt.Printf("%s  close=%10.4f  adjclose=%10.4f  volume=%d\n",
				utils.DayKey(q.Timestamp), q.Close, q.AdjClose, q.Volume)
		}
		return nil
	},
}

func init() {
	quotesCmd.Flags().String("from", "", "start date (YYYY-MM-DD, required)")
	quotesCmd.Flags().String("to", "", "end date (YYYY-MM-DD, default today)")
	quotesCmd.MarkFlagRequired("from")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and upstream connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  folio — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:      %s (%s)\n", version, commit)
		fmt.Println()
		fmt.Println("  Configuration:")
		fmt.Printf("    API Server:   %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Printf("    Quote Source: %s\n", cfg.Quote.BaseURL)
		fmt.Printf("    Rate Limit:   %d req/s\n", cfg.Quote.RatePerSec)
		fmt.Printf("    Cache TTL:    %ds\n", cfg.Quote.CacheTTLSec)
		fmt.Printf("    Simulations:  %d\n", cfg.Options.Simulations)
		fmt.Println()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		meta, err := newQuoteClient().Metadata(ctx, "SPY")
		if err != nil {
			fmt.Printf("  Upstream:     unreachable (%v)\n", err)
		} else {
			fmt.Printf("  Upstream:     ok (%s on %s, %s)\n",
				meta.Symbol, meta.Exchange, meta.Currency)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
