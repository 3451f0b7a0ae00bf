package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/timp-relay/internal/config"
	"github.com/Tyrowin/timp-relay/internal/logging"
	"github.com/Tyrowin/timp-relay/internal/server"
	"github.com/Tyrowin/timp-relay/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, port, dbPath, logLevel string

	flagSet := pflag.NewFlagSet("timp-relay", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&port, "port", "", "listen address, overrides server.port")
	flagSet.StringVar(&dbPath, "db", "", "SQLite database path, overrides store.path")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: timp-relay [flags]")
		flagSet.PrintDefaults()
		return nil
	}

	cfg, err := config.LoadAndValidate(configPath, func(c *config.Config) {
		if port != "" {
			c.Server.Port = port
		}
		if dbPath != "" {
			c.Store.Path = dbPath
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
	})
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log)
	log.Info().Msg("starting TIMP relay")

	st, err := store.Open(cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}()
	log.Info().Str("driver", cfg.Store.Driver).Str("path", cfg.Store.Path).Msg("store opened")

	hub := server.NewHub(cfg.Server, st, log)
	api := server.NewAPI(hub, st, log)
	httpServer := server.CreateServer(cfg.Server.Port, server.SetupRoutes(hub, api))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(httpServer, log)
	})
	g.Go(func() error {
		<-ctx.Done()
		hubErr := hub.Shutdown(shutdownTimeout)
		srvErr := server.ShutdownServer(httpServer, shutdownTimeout, log)
		return errors.Join(hubErr, srvErr)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
