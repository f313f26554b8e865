package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/flowlens/pkg/domain/model"
	"github.com/secmon-lab/flowlens/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Analytics holds CLI flags for analytics thresholds and cost rates
type Analytics struct {
	settingsPath string
	syncWindow   int
}

type analyticsFile struct {
	Analytics model.AnalyticsSettings `toml:"analytics"`
	CostRates model.CostRates         `toml:"cost_rates"`
}

// Flags returns CLI flags for analytics configuration
func (a *Analytics) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "analytics-config",
			Usage:       "Path to a TOML file with analytics thresholds and cost rates",
			Sources:     cli.EnvVars("FLOWLENS_ANALYTICS_CONFIG"),
			Destination: &a.settingsPath,
		},
		&cli.IntFlag{
			Name:        "sync-window-days",
			Usage:       "How many days of issue history to fetch on each sync",
			Value:       90,
			Sources:     cli.EnvVars("FLOWLENS_SYNC_WINDOW_DAYS"),
			Destination: &a.syncWindow,
		},
	}
}

// SyncWindowDays returns the configured issue sync window
func (a *Analytics) SyncWindowDays() int {
	return a.syncWindow
}

// Configure loads analytics settings and cost rates. When no file is
// given the defaults are used. Fields omitted from the file keep their
// default values.
func (a *Analytics) Configure() (model.AnalyticsSettings, model.CostRates, error) {
	settings := model.DefaultAnalyticsSettings()
	rates := model.DefaultCostRates()

	if a.settingsPath == "" {
		return settings, rates, nil
	}

	data, err := os.ReadFile(a.settingsPath)
	if err != nil {
		return settings, rates, goerr.Wrap(err, "failed to read analytics config", goerr.V("path", a.settingsPath))
	}

	file := analyticsFile{Analytics: settings, CostRates: rates}
	if err := toml.Unmarshal(data, &file); err != nil {
		return settings, rates, goerr.Wrap(err, "failed to parse analytics config", goerr.V("path", a.settingsPath))
	}
	if err := file.CostRates.Validate(); err != nil {
		return settings, rates, goerr.Wrap(err, "invalid cost rates", goerr.V("path", a.settingsPath))
	}

	logging.Default().Info("Loaded analytics config", "path", a.settingsPath)
	return file.Analytics, file.CostRates, nil
}
