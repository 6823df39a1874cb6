package check

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/internal/coordinator/notifier"
	"github.com/homectl/plugsched/internal/device"
	"github.com/homectl/plugsched/internal/store"
	"github.com/homectl/plugsched/internal/tuya"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Cmd runs a single schedule check and prints the result. Meant for an
// external cron that wants exactly-once semantics without a running monitor.
var Cmd = cobra.Command{
	Use:   "check",
	Short: "Run one schedule check and exit",
	RunE:  run,
}

func run(cmd *cobra.Command, _ []string) error {
	logger := charmer.GetLogger(cmd)
	cfg := viper.GetViper()

	timezone, err := time.LoadLocation(cfg.GetString("timezone"))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	devices, err := device.LoadFromFile(cfg.GetString("devices.file"))
	if err != nil {
		return fmt.Errorf("devices: %w", err)
	}

	s := store.NewFileStore(cfg.GetString("store.path"))
	client := tuya.NewClient(
		tuya.Config{
			AccessID:  cfg.GetString("tuya.access_id"),
			AccessKey: cfg.GetString("tuya.access_key"),
			BaseURL:   cfg.GetString("tuya.base_url"),
		},
		tuya.IRConfig{
			GatewayID:  cfg.GetString("ir.gateway_id"),
			RemoteID:   cfg.GetString("ir.remote_id"),
			CategoryID: cfg.GetInt("ir.category_id"),
			KeyID:      cfg.GetInt("ir.key_id"),
			Mode:       cfg.GetInt("ir.mode"),
			Temp:       cfg.GetInt("ir.temp"),
			Wind:       cfg.GetInt("ir.wind"),
		},
		nil,
		logger.With("component", "tuya"),
	)

	c := coordinator.New(s, devices, client, timezone, nil,
		notifier.SLogNotifier{Logger: logger.With("component", "notifier")},
		logger.With("component", "coordinator"),
	)
	result, err := c.RunScheduleCheck(cmd.Context())
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}
