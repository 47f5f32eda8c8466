package worker

import (
	"context"
	"fmt"
	"io"
	"sync"

	"stockpulse/internal/domain"
)

// Notifier displays OS notifications.
type Notifier interface {
	Show(ctx context.Context, n domain.NotificationPayload) error
	Close(ctx context.Context, tag string) error
}

// Client is one open window controlled by the worker.
type Client interface {
	URL() string
	Focus(ctx context.Context) error
}

// Clients is the set of windows the worker can see.
type Clients interface {
	Claim(ctx context.Context) error
	MatchAll(ctx context.Context) ([]Client, error)
	OpenWindow(ctx context.Context, url string) error
}

// WriterNotifier prints every notification as one line.
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Show(_ context.Context, p domain.NotificationPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "[%s] %s: %s\n", p.Tag, p.Title, p.Body)
	return err
}

func (n *WriterNotifier) Close(context.Context, string) error { return nil }

// NoClients is a Clients with no open windows that ignores navigation.
type NoClients struct{}

func (NoClients) Claim(context.Context) error                { return nil }
func (NoClients) MatchAll(context.Context) ([]Client, error) { return nil, nil }
func (NoClients) OpenWindow(context.Context, string) error   { return nil }
