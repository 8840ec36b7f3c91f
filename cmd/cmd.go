package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/internal/devserver"
	"github.com/urfave/cli/v2"
)

const ServiceName = "realtime-core"

func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Real-time messaging and presence client core",
		Commands: []*cli.Command{
			clientCmd(),
			devServerCmd(),
		},
	}

	return app.Run(os.Args)
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:    "client",
		Aliases: []string{"c"},
		Usage:   "Run the interactive terminal chat client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
			&cli.StringFlag{
				Name:  "user_id",
				Usage: "Local user id (overrides config)",
			},
			&cli.StringFlag{
				Name:  "user_name",
				Usage: "Local user display name (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"), nil)
			if err != nil {
				return err
			}
			if id := c.String("user_id"); id != "" {
				cfg.User.ID = id
			}
			if name := c.String("user_name"); name != "" {
				cfg.User.Name = name
			}
			if cfg.User.ID == "" {
				return fmt.Errorf("a user id is required (--user_id or REALTIME_USER_ID)")
			}

			return runClient(c.Context, cfg)
		},
	}
}

func devServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "devserver",
		Aliases: []string{"d"},
		Usage:   "Run the in-memory reference backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: ":8080",
				Usage: "Listen address",
			},
		},
		Action: func(c *cli.Context) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			srv := devserver.New(logger)

			httpSrv := &http.Server{Addr: c.String("addr"), Handler: srv.Handler()}
			go func() {
				logger.Info("devserver listening", "addr", c.String("addr"))
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("devserver failed", "err", err)
				}
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			logger.Info("shutting down...")
			return httpSrv.Shutdown(context.Background())
		},
	}
}
