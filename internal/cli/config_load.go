package cli

import (
	"github.com/dongwonkwak/ironpost/internal/config"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

// loadConfig loads and validates the config at the global --config path,
// wrapping any failure as a KindConfig Ironpost error so Execute maps it
// to exit code 2 regardless of which subcommand triggered it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindConfig, "load config", err).WithPath(configPath)
	}
	return cfg, nil
}
