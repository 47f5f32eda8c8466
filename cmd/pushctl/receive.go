package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"stockpulse/internal/worker"
	"stockpulse/pkg/pushclient"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

func receiveCmd(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "receive",
		Usage:     "Run a local push endpoint that prints incoming notifications",
		UsageText: "pushctl receive [--listen :9099] [--public-url http://host:9099] [--no-register]",
		Description: `Starts an HTTP endpoint that behaves like a browser's push service and
service worker: each delivery is rendered as one line on stdout. Unless
--no-register is given the endpoint subscribes itself to the push service.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Value: ":9099"},
			&cli.StringFlag{Name: "public-url", Usage: "URL the push service can reach this endpoint at", Value: "http://localhost:9099"},
			&cli.StringFlag{Name: "origin", Value: "http://localhost:3000", Usage: "origin of the PWA"},
			&cli.BoolFlag{Name: "no-register"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			origin := c.String("origin")
			network, err := worker.NewHTTPNetwork(origin, 10*time.Second)
			if err != nil {
				return err
			}
			w, err := worker.New(worker.Options{
				Origin:   origin,
				Network:  network,
				Notifier: worker.NewWriterNotifier(os.Stdout),
			})
			if err != nil {
				return err
			}

			path := "/push/" + uuid.NewString()
			mux := http.NewServeMux()
			mux.Handle(path, worker.NewPushReceiver(w))
			srv := &http.Server{Addr: c.String("listen"), Handler: mux, ReadHeaderTimeout: 10 * time.Second}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()

			endpoint := strings.TrimRight(c.String("public-url"), "/") + path
			if !c.Bool("no-register") {
				if err := g.client().Subscribe(ctx, pushclient.Subscription{Endpoint: endpoint}, "pushctl-receive"); err != nil {
					_ = srv.Close()
					return fmt.Errorf("register endpoint: %w", err)
				}
			}
			fmt.Fprintf(os.Stdout, "listening for pushes at %s\n", endpoint)

			select {
			case <-ctx.Done():
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("receiver shutdown", "error", err)
			}
			return nil
		},
	}
}
