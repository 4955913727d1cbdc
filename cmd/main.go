package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Alias1177/ameritrade/ameritrade"
	"github.com/Alias1177/ameritrade/config"
	internalConfig "github.com/Alias1177/ameritrade/internal/config"
	"github.com/Alias1177/ameritrade/internal/indicators"
	"github.com/Alias1177/ameritrade/internal/logger"
	"github.com/Alias1177/ameritrade/internal/tracing"
	"github.com/Alias1177/ameritrade/models"
)

const usage = `usage: ameritrade <command> [flags]

commands:
  auth-url                      print the authorization page URL
  token [-code CODE]            refresh the access token, or exchange an authorization code
  quotes SYMBOL...              print quotes
  history [flags] SYMBOL        print price history
  instrument CUSIP              print one instrument
  search [-projection P] TEXT   search instruments
  account [-fields F] [ID]      print an account (default: configured account)
  accounts [-fields F]          print linked accounts
  movers [flags] INDEX          print the index's top movers with 52 week range
`

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	settings, err := internalConfig.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.Setup(settings.LogLevel, settings.LogFormat)

	shutdown, err := tracing.Init(settings.TracingEnabled, os.Stderr)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracing")
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, settings, log, os.Args[1], os.Args[2:]); err != nil {
		var ip *ameritrade.InvalidParameterError
		if errors.As(err, &ip) {
			fmt.Fprintln(os.Stderr, aurora.Red(err.Error()))
		}
		log.Error().Err(err).Str("command", os.Args[1]).Msg("Command failed")
		return 1
	}
	return 0
}

func newClient(settings *internalConfig.Config, log zerolog.Logger) (*ameritrade.Client, error) {
	cfg, err := config.Load(settings.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts := cfg.Options()
	opts.Timeout = settings.RequestTimeout
	opts.RequestsPerSec = settings.RequestsPerSec
	opts.Logger = &log
	return ameritrade.NewClient(opts)
}

func run(ctx context.Context, settings *internalConfig.Config, log zerolog.Logger, cmd string, args []string) error {
	client, err := newClient(settings, log)
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "auth-url":
		fmt.Println(client.AuthorizationURL())
		return nil

	case "token":
		code := fs.String("code", "", "authorization code to exchange for an offline token")
		if err := fs.Parse(args); err != nil {
			return err
		}
		var token *models.Token
		if *code != "" {
			token, err = client.GrantOfflineToken(ctx, *code)
		} else {
			token, err = client.GrantRefreshToken(ctx)
		}
		if err != nil {
			return err
		}
		printItem(token)
		if rt := client.Credentials().RefreshToken; rt != "" && *code != "" {
			fmt.Println(aurora.Bold("refresh_token:"), rt)
		}
		return nil

	case "quotes":
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		quotes, err := client.Quotes(ctx, splitSymbols(args)...)
		if err != nil {
			return err
		}
		for _, q := range quotes {
			printItem(q)
		}
		return nil

	case "history":
		var p models.PriceHistoryParams
		fs.StringVar(&p.PeriodType, "period-type", "", "day, month, year or ytd")
		fs.IntVar(&p.Period, "period", 0, "number of periods")
		fs.StringVar(&p.FrequencyType, "frequency-type", "", "minute, daily, weekly or monthly")
		fs.IntVar(&p.Frequency, "frequency", 0, "frequency per candle")
		start := fs.String("start", "", "start date, RFC 3339 or YYYY-MM-DD")
		end := fs.String("end", "", "end date, RFC 3339 or YYYY-MM-DD")
		extended := fs.Bool("extended", true, "include extended hours candles")
		sma := fs.Int("sma", 0, "print the simple moving average of closes over N candles")
		ema := fs.Int("ema", 0, "print the exponential moving average of closes over N candles")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("history takes one symbol")
		}
		if p.StartDate, err = parseDate(*start); err != nil {
			return err
		}
		if p.EndDate, err = parseDate(*end); err != nil {
			return err
		}
		p.NeedExtendedHoursData = extended
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		ph, err := client.PriceHistory(ctx, fs.Arg(0), p)
		if err != nil {
			return err
		}
		printItem(ph)
		for _, c := range ph.Candles() {
			fmt.Printf("  %s  O %s  H %s  L %s  C %s  V %d\n",
				c.Datetime.Format(time.RFC3339), c.Open, c.High, c.Low, colourClose(c), c.Volume)
		}
		if *sma > 0 {
			if err := printAverage("SMA", *sma, ph.Candles(), indicators.SMA); err != nil {
				return err
			}
		}
		if *ema > 0 {
			if err := printAverage("EMA", *ema, ph.Candles(), indicators.EMA); err != nil {
				return err
			}
		}
		return nil

	case "instrument":
		if len(args) != 1 {
			return fmt.Errorf("instrument takes one cusip")
		}
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		inst, err := client.Instrument(ctx, args[0])
		if err != nil {
			return err
		}
		printItem(inst)
		return nil

	case "search":
		projection := fs.String("projection", ameritrade.ProjectionSymbolSearch, "search projection")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("search takes one search text")
		}
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		found, err := client.SearchInstruments(ctx, fs.Arg(0), *projection)
		if err != nil {
			return err
		}
		for _, inst := range found {
			printItem(inst)
		}
		return nil

	case "account", "accounts":
		fields := fs.String("fields", "", "comma separated: positions, orders")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		var accounts []*models.Account
		if cmd == "account" {
			a, err := client.Account(ctx, fs.Arg(0), *fields)
			if err != nil {
				return err
			}
			accounts = append(accounts, a)
		} else if accounts, err = client.LinkedAccounts(ctx, *fields); err != nil {
			return err
		}
		for _, a := range accounts {
			printItem(a)
			for _, pos := range a.Positions() {
				fmt.Printf("  position: %v\n", pos)
			}
		}
		return nil

	case "movers":
		direction := fs.String("direction", "", "up or down")
		change := fs.String("change", "", "value or percent")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("movers takes one index")
		}
		if err := authenticate(ctx, client); err != nil {
			return err
		}
		movers, err := client.Movers(ctx, fs.Arg(0), *direction, *change)
		if err != nil {
			return err
		}
		for _, m := range movers {
			printMover(ctx, m)
		}
		return nil
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// authenticate grants an access token up front when none is configured.
func authenticate(ctx context.Context, client *ameritrade.Client) error {
	if client.Credentials().AccessToken != "" {
		return nil
	}
	_, err := client.GrantRefreshToken(ctx)
	return err
}

func splitSymbols(args []string) []string {
	var out []string
	for _, a := range args {
		for _, s := range strings.Split(a, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse date %q", s)
}

func printItem(item models.ResultItem) {
	fmt.Println(aurora.Bold(aurora.Cyan(item.Describe())))
}

func colourClose(c models.Candle) aurora.Value {
	if c.Close.LessThan(c.Open) {
		return aurora.Red(c.Close.String())
	}
	return aurora.Green(c.Close.String())
}

var hundred = decimal.NewFromInt(100)

func printMover(ctx context.Context, m *models.Mover) {
	change := aurora.Green(m.Change().String())
	if m.Direction() == "down" {
		change = aurora.Red(m.Change().String())
	}
	fmt.Printf("*** %s ***  %s  change %s\n", aurora.Bold(m.Symbol()), m.Description(), change)

	q, err := m.Quote(ctx)
	if err != nil {
		fmt.Println(aurora.Yellow(fmt.Sprintf("  no quote: %v", err)))
		return
	}
	last := q.LastPrice()
	high, okHigh := q.Decimal("52WkHigh")
	low, okLow := q.Decimal("52WkLow")
	fmt.Printf("  Current price: %s   52wk HIGH: %s   52wk LOW: %s\n", last, high, low)
	if okHigh && !high.IsZero() {
		fmt.Printf("  Off high: %s%%\n", decimal.NewFromInt(1).Sub(last.Div(high)).Mul(hundred).StringFixed(2))
	}
	if okLow && !low.IsZero() {
		fmt.Printf("  Above low: %s%%\n", last.Div(low).Sub(decimal.NewFromInt(1)).Mul(hundred).StringFixed(2))
	}
}

func printAverage(name string, period int, candles []models.Candle, average func([]models.Candle, int) ([]indicators.Point, error)) error {
	points, err := average(candles, period)
	if err != nil {
		return fmt.Errorf("%s(%d): %w", name, period, err)
	}
	last, _ := indicators.Last(points)
	fmt.Printf("%s(%d) at %s: %s\n", aurora.Bold(name), period,
		last.Candle.Datetime.Format(time.RFC3339), last.Value.StringFixed(4))
	return nil
}
