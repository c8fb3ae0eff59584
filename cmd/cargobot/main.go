// Command cargobot runs the cargo shipment tracking bot.
package main

import (
	"context"
	"fmt"
	"log"

	corecmd "github.com/m3rciful/cargobot/core/cmd"
	"github.com/m3rciful/cargobot/internal/app"
	"github.com/m3rciful/cargobot/internal/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: func(ctx context.Context, cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			c, ok := cfg.(*config.Config)
			if !ok {
				return nil, fmt.Errorf("unexpected config type %T", cfg)
			}
			return app.Bootstrap(ctx, c)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}
