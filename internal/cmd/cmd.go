package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/homectl/plugsched/internal/cmd/check"
	"github.com/homectl/plugsched/internal/cmd/monitor"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "plugsched",
		Short: "Calendar-driven scheduler for smart plugs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd, &check.Cmd)
}

var args = charmer.Arguments{
	"debug":           charmer.Argument{Default: false, Help: "Log debug messages"},
	"timezone":        charmer.Argument{Default: "Local", Help: "Timezone for schedule evaluation"},
	"store.path":      charmer.Argument{Default: "plugsched.json", Help: "Path of the state file"},
	"devices.file":    charmer.Argument{Default: "devices.yaml", Help: "Path of the device registry"},
	"check.interval":  charmer.Argument{Default: time.Minute, Help: "Schedule check interval"},
	"tuya.access_id":  charmer.Argument{Default: "", Help: "Tuya cloud access ID"},
	"tuya.access_key": charmer.Argument{Default: "", Help: "Tuya cloud access key"},
	"tuya.base_url":   charmer.Argument{Default: "https://openapi.tuyaeu.com", Help: "Tuya cloud API endpoint"},
	"ir.gateway_id":   charmer.Argument{Default: "", Help: "IR blaster gateway device ID"},
	"ir.remote_id":    charmer.Argument{Default: "", Help: "IR remote device ID"},
	"ir.category_id":  charmer.Argument{Default: 5, Help: "IR remote category"},
	"ir.key_id":       charmer.Argument{Default: 0, Help: "IR remote PowerOff key ID"},
	"ir.mode":         charmer.Argument{Default: 0, Help: "Aircon mode for IR power-on"},
	"ir.temp":         charmer.Argument{Default: 26, Help: "Aircon temperature for IR power-on"},
	"ir.wind":         charmer.Argument{Default: 2, Help: "Aircon fan speed for IR power-on"},
	"server.addr":     charmer.Argument{Default: ":8080", Help: "Address of the API & /health endpoints"},
	"prometheus.addr": charmer.Argument{Default: ":9090", Help: "Address of the Prometheus metrics endpoint"},
	"cron.token":      charmer.Argument{Default: "", Help: "Bearer token for the external check trigger"},
	"slack.token":     charmer.Argument{Default: "", Help: "Slack bot token"},
	"slack.app_token": charmer.Argument{Default: "", Help: "Slack app-level token (socket mode)"},
}

func initConfig() {
	// secrets may live in a .env file next to the binary
	_ = godotenv.Load()

	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/plugsched/")
		viper.AddConfigPath("$HOME/.plugsched")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("PLUGSCHED")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
