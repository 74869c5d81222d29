package main

import (
	"flag"
	"log/slog"
	"os"

	"outcomex/internal/api"
	"outcomex/internal/config"
	"outcomex/internal/engine"
	"outcomex/internal/events"
	"outcomex/internal/ledger"
	"outcomex/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to engine config file (yaml)")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	l := ledger.New()
	bus := events.NewBus()
	m := metrics.NewMetrics()
	eng := engine.New(cfg, l, bus, m)

	bus.Subscribe(func(t events.Type, payload any) {
		slog.Info("event", "type", t.String())
	})

	server := api.NewServer(*listenAddr, eng, l, m)

	slog.Info("engine starting", "listen_addr", *listenAddr, "ticks_per_unit", cfg.TicksPerUnit())
	if err := server.Run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
