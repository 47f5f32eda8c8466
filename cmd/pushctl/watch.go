package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stockpulse/internal/clientsync"
	"stockpulse/pkg/db"

	"github.com/urfave/cli/v3"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Keep a watch list in local storage and background-sync it",
		UsageText: "pushctl watch [--db stockpulse-client.db] [--stock AAPL=198.2 ...]",
		Description: `Runs the client background sync service against a sqlite-backed local
storage. Several watch processes sharing one database behave like browser tabs
of the same origin.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: "file:stockpulse-client.db?cache=shared", Usage: "sqlite DSN for local storage"},
			&cli.StringSliceFlag{Name: "stock", Usage: "SYMBOL=PRICE to add to the watch list"},
			&cli.StringFlag{Name: "probe-url", Value: "http://localhost:8085/healthz", Usage: "URL probed for connectivity"},
			&cli.DurationFlag{Name: "interval", Value: clientsync.DefaultInterval},
			&cli.DurationFlag{Name: "poll", Value: 5 * time.Second, Usage: "how often to check storage for writes by other processes"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			gdb, err := db.OpenGorm(db.Config{Driver: db.DriverSQLite, DSN: c.String("db")})
			if err != nil {
				return err
			}
			storage := clientsync.NewGormStorage(gdb)
			if err := storage.AutoMigrate(ctx); err != nil {
				return err
			}

			events := clientsync.NewChannelEvents()
			svc := clientsync.New(clientsync.Options{
				Storage:  storage,
				Events:   events,
				Interval: c.Duration("interval"),
			})
			svc.AddStorageListener(clientsync.WatchedStocksKey, func(_ string, value []byte) {
				printStocks(clientsync.DecodeWatchedStocks(value))
			})
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			if add := c.StringSlice("stock"); len(add) > 0 {
				stocks, err := mergeStocks(svc.LoadWatchedStocks(ctx), add)
				if err != nil {
					return err
				}
				svc.SaveWatchedStocks(ctx, stocks)
			} else {
				printStocks(svc.LoadWatchedStocks(ctx))
			}

			probe := clientsync.NewConnectivityProbe(c.String("probe-url"), c.Duration("interval")/2, events)
			go func() { _ = probe.Run(ctx) }()

			pollStorage(ctx, storage, events, c.Duration("poll"))
			events.Emit(clientsync.Event{Kind: clientsync.EventBeforeUnload})
			return nil
		},
	}
}

// pollStorage turns writes made by other processes into storage events.
func pollStorage(ctx context.Context, storage clientsync.Storage, events *clientsync.ChannelEvents, every time.Duration) {
	last, _ := storage.GetItem(ctx, clientsync.WatchedStocksKey)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cur, err := storage.GetItem(ctx, clientsync.WatchedStocksKey)
			if err != nil || string(cur) == string(last) {
				continue
			}
			last = cur
			events.Emit(clientsync.Event{Kind: clientsync.EventStorage, Key: clientsync.WatchedStocksKey, NewValue: cur})
		}
	}
}

func mergeStocks(existing []clientsync.WatchedStock, specs []string) ([]clientsync.WatchedStock, error) {
	now := time.Now().UnixMilli()
	index := make(map[string]int, len(existing))
	for i, s := range existing {
		index[s.Symbol] = i
	}
	for _, spec := range specs {
		sym, priceStr, ok := strings.Cut(spec, "=")
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if !ok || sym == "" {
			return nil, fmt.Errorf("invalid stock %q, want SYMBOL=PRICE", spec)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price in %q: %w", spec, err)
		}
		if i, ok := index[sym]; ok {
			prev := existing[i].Price
			existing[i].Price = price
			existing[i].Change = price - prev
			if prev != 0 {
				existing[i].ChangePercent = (price - prev) / prev * 100
			}
			existing[i].LastUpdated = now
			continue
		}
		index[sym] = len(existing)
		existing = append(existing, clientsync.WatchedStock{Symbol: sym, Name: sym, Price: price, LastUpdated: now})
	}
	return existing, nil
}

func printStocks(stocks []clientsync.WatchedStock) {
	if len(stocks) == 0 {
		fmt.Fprintln(os.Stdout, "watch list is empty")
		return
	}
	for _, s := range stocks {
		fmt.Fprintf(os.Stdout, "%-6s %10.2f %+8.2f (%+.2f%%)\n", s.Symbol, s.Price, s.Change, s.ChangePercent)
	}
}
