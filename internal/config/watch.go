package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Watch reloads the config file on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop. Invalid files are
// logged and skipped; the previous config stays in effect.
func Watch(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Config)) error {
	if path == "" {
		path = "configs/config.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := Load(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := Load(path)
				if err != nil {
					if logger != nil {
						logger.Warn().Err(err).Str("path", path).Msg("config reload rejected")
					}
					continue
				}
				if logger != nil {
					logger.Info().Str("path", path).Msg("config reloaded")
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
