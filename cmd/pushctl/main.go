package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"stockpulse/internal/jwtsigner"
	"stockpulse/internal/observability/logging"
	"stockpulse/pkg/pushclient"

	"github.com/urfave/cli/v3"
)

type globals struct {
	apiURL   string
	token    string
	logLevel string
}

func main() {
	g := &globals{}

	app := &cli.Command{
		Name:      "pushctl",
		Usage:     "Operate the StockPulse push service",
		UsageText: "pushctl [global options] command [command options]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "api",
				Usage:       "base URL of the push service",
				Sources:     cli.EnvVars("PUSH_API_URL"),
				Value:       "http://localhost:8085",
				Destination: &g.apiURL,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "bearer token for the send endpoints (secret or JWT)",
				Sources:     cli.EnvVars("PUSH_TRIGGER_TOKEN"),
				Destination: &g.token,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "warn",
				Destination: &g.logLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			slog.SetDefault(logging.NewLogger(logging.Config{
				ServiceName: "pushctl",
				Environment: "cli",
				Level:       g.logLevel,
				Output:      os.Stderr,
			}))
			return ctx, nil
		},
		Commands: []*cli.Command{
			subscribeCmd(g),
			listCmd(g),
			sendCmd(g),
			testCmd(g),
			tokenCmd(),
			receiveCmd(g),
			watchCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (g *globals) client() *pushclient.Client {
	return pushclient.New(g.apiURL, pushclient.WithToken(g.token))
}

func subscribeCmd(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Register a push subscription",
		UsageText: "pushctl subscribe --endpoint URL [--p256dh KEY --auth SECRET]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Usage: "push endpoint URL", Required: true},
			&cli.StringFlag{Name: "p256dh", Usage: "client public key"},
			&cli.StringFlag{Name: "auth", Usage: "client auth secret"},
			&cli.StringFlag{Name: "user-agent", Value: "pushctl"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			sub := pushclient.Subscription{Endpoint: c.String("endpoint")}
			sub.Keys.P256dh = c.String("p256dh")
			sub.Keys.Auth = c.String("auth")
			if err := g.client().Subscribe(ctx, sub, c.String("user-agent")); err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			fmt.Fprintf(os.Stdout, "subscribed %s\n", sub.Endpoint)
			return nil
		},
	}
}

func listCmd(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored subscriptions",
		Action: func(ctx context.Context, c *cli.Command) error {
			res, err := g.client().ListSubscriptions(ctx)
			if err != nil {
				return fmt.Errorf("list subscriptions: %w", err)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENDPOINT\tCREATED\tLAST USED")
			for _, d := range res.Details {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Endpoint,
					d.CreatedAt.Local().Format(time.DateTime), d.LastUsed.Local().Format(time.DateTime))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "%d subscription(s)\n", res.Subscriptions)
			return nil
		},
	}
}

func sendCmd(g *globals) *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send a notification to every subscription or to one target",
		UsageText: "pushctl send --title T --body B [--target ID|ENDPOINT]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Required: true},
			&cli.StringFlag{Name: "body", Required: true},
			&cli.StringFlag{Name: "tag"},
			&cli.StringFlag{Name: "icon"},
			&cli.StringFlag{Name: "target", Usage: "subscription id or endpoint"},
			&cli.BoolFlag{Name: "require-interaction"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			n := pushclient.Notification{
				Title:              c.String("title"),
				Body:               c.String("body"),
				Tag:                c.String("tag"),
				Icon:               c.String("icon"),
				RequireInteraction: c.Bool("require-interaction"),
			}
			res, err := g.client().Send(ctx, n, c.String("target"))
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			printSendResult(res)
			return nil
		},
	}
}

func testCmd(g *globals) *cli.Command {
	return &cli.Command{
		Name:  "test",
		Usage: "Send the canned test notification",
		Action: func(ctx context.Context, c *cli.Command) error {
			res, err := g.client().SendTest(ctx)
			if err != nil {
				return fmt.Errorf("send test: %w", err)
			}
			printSendResult(res)
			return nil
		},
	}
}

func printSendResult(res pushclient.SendResult) {
	fmt.Fprintln(os.Stdout, res.Message)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stdout, "  - %s\n", e)
	}
}

func tokenCmd() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint an HS256 token for the send endpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "secret", Sources: cli.EnvVars("PUSH_TRIGGER_SECRET"), Required: true},
			&cli.StringFlag{Name: "subject", Value: "pushctl"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			signer, err := jwtsigner.New(c.String("secret"), "")
			if err != nil {
				return err
			}
			tok, err := signer.Sign(c.String("subject"), c.Duration("ttl"), nil)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(os.Stdout, tok)
			return nil
		},
	}
}
