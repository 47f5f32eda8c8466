// Package clientsync persists the watched-stock list and background-sync
// snapshot of one StockPulse client to durable local storage, driven by
// platform lifecycle events.
package clientsync

import (
	"encoding/json"
	"math"
	"strings"
)

const (
	WatchedStocksKey  = "stockpulse_watched_stocks"
	BackgroundSyncKey = "stockpulse_background_sync"
	EnvelopeVersion   = "1.0.0"
)

// WatchedStock is one stock on the user's watch list.
type WatchedStock struct {
	Symbol        string   `json:"symbol"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`
	ChangePercent float64  `json:"changePercent"`
	AlertPrice    *float64 `json:"alertPrice,omitempty"`
	LastUpdated   int64    `json:"lastUpdated"`

	// Session-only; reset on every save.
	WebSocketConnection any  `json:"webSocketConnection"`
	IsLoading           bool `json:"isLoading"`
}

// Valid is the structural check applied to persisted entries on load.
func (s WatchedStock) Valid() bool {
	if strings.TrimSpace(s.Symbol) == "" {
		return false
	}
	if math.IsNaN(s.Price) || math.IsInf(s.Price, 0) || s.Price < 0 {
		return false
	}
	return true
}

func (s WatchedStock) stripped() WatchedStock {
	s.WebSocketConnection = nil
	s.IsLoading = false
	return s
}

func stripAll(stocks []WatchedStock) []WatchedStock {
	out := make([]WatchedStock, len(stocks))
	for i, s := range stocks {
		out[i] = s.stripped()
	}
	return out
}

// Envelope is the value stored under WatchedStocksKey.
type Envelope struct {
	WatchedStocks []WatchedStock `json:"watchedStocks"`
	LastSync      int64          `json:"lastSync"`
	Version       string         `json:"version"`
}

type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusUnknown      ConnectionStatus = "unknown"
)

// Snapshot is the value stored under BackgroundSyncKey. It is overwritten
// wholesale on every sync.
type Snapshot struct {
	Stocks           []WatchedStock   `json:"stocks"`
	LastUpdate       int64            `json:"lastUpdate"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

// DecodeWatchedStocks extracts the valid entries of a stored envelope. A
// missing or non-array watchedStocks field yields an empty result; entries that
// fail to decode or validate are dropped.
func DecodeWatchedStocks(raw []byte) []WatchedStock {
	var env struct {
		WatchedStocks json.RawMessage `json:"watchedStocks"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return []WatchedStock{}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(env.WatchedStocks, &entries); err != nil {
		return []WatchedStock{}
	}
	out := make([]WatchedStock, 0, len(entries))
	for _, e := range entries {
		var s WatchedStock
		if err := json.Unmarshal(e, &s); err != nil {
			continue
		}
		if !s.Valid() {
			continue
		}
		out = append(out, s.stripped())
	}
	return out
}
