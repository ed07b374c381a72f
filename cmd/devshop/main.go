package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"storefront/client/internal/devserver"
	"storefront/client/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", "configs/devshop.yaml", "path to dev server config file")
	listenAddr := flag.String("listen", "", "override listen_addr from the config")
	flag.Parse()

	cfg, err := devserver.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger := logging.NewWriter(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	defer logger.Close()
	logger.Infof("storefront dev server starting (config: %s)", *configPath)

	seeds, err := devserver.LoadProducts(cfg.ProductsDir)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	store := devserver.NewStore(nil)
	store.Seed(seeds)
	logger.Infof("loaded %d products from %s", len(seeds), cfg.ProductsDir)

	server := devserver.NewServer(cfg, store, logger.Named("http"))
	if err := server.SeedUsers(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}
