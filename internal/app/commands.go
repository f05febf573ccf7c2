package app

import (
	"encoding/json"
	"fmt"
)

// Command is a renderer request, e.g. {"action":"select","value":"AAPL"}.
type Command struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`
}

type rangeValue struct {
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

type moveValue struct {
	From int `json:"from"`
	To   int `json:"to"`
}

type tickerValue struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

type tabValue struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Execute decodes and runs a renderer command on the loop.
func (a *App) Execute(cmd Command) error {
	log := a.log.WithField("action", cmd.Action)
	err := a.execute(cmd)
	if err != nil {
		log.WithError(err).Warn("command rejected")
		return err
	}
	log.Debug("command executed")
	return nil
}

func (a *App) execute(cmd Command) error {
	switch cmd.Action {
	case "select":
		var ticker string
		if err := decode(cmd, &ticker); err != nil {
			return err
		}
		a.SelectTicker(ticker)
	case "range":
		var v rangeValue
		if err := decode(cmd, &v); err != nil {
			return err
		}
		if v.Period == "" || v.Interval == "" {
			return fmt.Errorf("range: period and interval are required")
		}
		a.SetRange(v.Period, v.Interval)
	case "refresh":
		a.Refresh()
	case "search":
		var q string
		if err := decode(cmd, &q); err != nil {
			return err
		}
		a.Query(q)
	case "reorder":
		var tickers []string
		if err := decode(cmd, &tickers); err != nil {
			return err
		}
		return a.Reorder(tickers)
	case "move":
		var v moveValue
		if err := decode(cmd, &v); err != nil {
			return err
		}
		return a.MoveTicker(v.From, v.To)
	case "add":
		var v tickerValue
		if err := decode(cmd, &v); err != nil {
			return err
		}
		return a.AddTicker(v.Ticker, v.Name)
	case "remove":
		var ticker string
		if err := decode(cmd, &ticker); err != nil {
			return err
		}
		return a.RemoveTicker(ticker)
	case "tab":
		var id int64
		if err := decode(cmd, &id); err != nil {
			return err
		}
		return a.SwitchTab(id)
	case "create_tab":
		var name string
		if err := decode(cmd, &name); err != nil {
			return err
		}
		return a.CreateTab(name)
	case "rename_tab":
		var v tabValue
		if err := decode(cmd, &v); err != nil {
			return err
		}
		return a.RenameTab(v.ID, v.Name)
	case "delete_tab":
		var id int64
		if err := decode(cmd, &id); err != nil {
			return err
		}
		return a.DeleteTab(id)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

func decode(cmd Command, v any) error {
	if len(cmd.Value) == 0 {
		return fmt.Errorf("%s: missing value", cmd.Action)
	}
	if err := json.Unmarshal(cmd.Value, v); err != nil {
		return fmt.Errorf("%s: decode value: %w", cmd.Action, err)
	}
	return nil
}
