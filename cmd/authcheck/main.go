// Command authcheck validates the configured KNMI credentials without
// starting the service: it probes the MQTT broker subscription, the EDR
// metadata endpoint, and the WMS capabilities document.
//
// Usage:
//
//	go run ./cmd/authcheck
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/nlweather/knmi-direct/internal/adapter/mqttsource"
	"github.com/nlweather/knmi-direct/internal/config"
	"github.com/nlweather/knmi-direct/internal/knmi"
	"github.com/nlweather/knmi-direct/internal/listener"
	"github.com/nlweather/knmi-direct/internal/observability"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := observability.NewLogger("error", "text")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false
	check := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil {
			fmt.Printf("FAIL %-14s %v\n", name, err)
			failed = true
			return
		}
		fmt.Printf("OK   %s\n", name)
	}

	check("notification", func(ctx context.Context) error {
		source := mqttsource.New(mqttsource.Config{
			BrokerURL: cfg.BrokerURL,
			Token:     cfg.NotificationToken,
		}, logger)
		return listener.Check(ctx, source)
	})

	check("edr", func(ctx context.Context) error {
		edr := knmi.NewEDRClient(cfg.EDRToken, cfg.ClientTimeout, logger)
		_, err := edr.Metadata(ctx)
		return err
	})

	check("wms", func(ctx context.Context) error {
		wms := knmi.NewWMSClient(cfg.WMSToken, cfg.ClientTimeout, logger)
		_, err := wms.Capabilities(ctx)
		return err
	})

	if failed {
		os.Exit(1)
	}
}
