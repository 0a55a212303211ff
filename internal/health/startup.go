// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"fmt"
	"net"
	"strconv"

	"github.com/ManuGH/reelforge/internal/config"
	"github.com/ManuGH/reelforge/internal/log"
)

// PerformStartupChecks prepares and verifies the directories the service
// writes to and the listen address, failing fast before serving.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	for _, dir := range []struct{ name, path string }{
		{"data directory", cfg.DataDir},
		{"temp directory", cfg.TempDir},
	} {
		if err := EnsureWritableDir(dir.path); err != nil {
			return fmt.Errorf("%s check failed: %w", dir.name, err)
		}
		logger.Debug().Str("dir", dir.name).Str(log.FieldPath, dir.path).Msg("directory is writable")
	}

	if cfg.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid listen port %q in %q", port, cfg.ListenAddr)
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}
