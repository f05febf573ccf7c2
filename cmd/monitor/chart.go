package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"MarketMirror/internal/normalize"
)

type chartCmd struct {
	configFlag
	period   string
	interval string
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "fetch one chart and print its normalized points as JSON" }
func (*chartCmd) Usage() string {
	return `monitor chart [-config <path>] [-period 1mo] [-interval 1d] <ticker>

  Fetches OHLCV bars from the backend and prints them keyed for the
  configured timezone: epoch seconds for intraday intervals, calendar
  dates otherwise.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.period, "period", "", "Chart period (1d, 5d, 1mo, 3mo, 6mo, 1y, 5y, 10y, max). Defaults to the dashboard period.")
	f.StringVar(&c.interval, "interval", "", "Bar interval (1m, 5m, 15m, 1h, 1d, 1wk, 1mo). Defaults to the dashboard interval.")
}

func (c *chartCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "chart: exactly one ticker is required")
		return subcommands.ExitUsageError
	}
	cfg, log, err := c.load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.period == "" {
		c.period = cfg.Dashboard.Period
	}
	if c.interval == "" {
		c.interval = cfg.Dashboard.Interval
	}
	offset, err := cfg.TZOffset(time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	bars, err := newClient(cfg, log).FetchChart(ctx, f.Arg(0), c.period, c.interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalize.Normalize(bars, c.interval, offset)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
