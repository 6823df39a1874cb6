package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/clambin/slackapp"
	"github.com/homectl/plugsched/internal/api"
	"github.com/homectl/plugsched/internal/bot"
	"github.com/homectl/plugsched/internal/collector"
	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/internal/coordinator/notifier"
	"github.com/homectl/plugsched/internal/device"
	"github.com/homectl/plugsched/internal/dutycycle"
	"github.com/homectl/plugsched/internal/health"
	"github.com/homectl/plugsched/internal/store"
	"github.com/homectl/plugsched/internal/tuya"
	"github.com/homectl/plugsched/pkg/pubsub"
	"github.com/homectl/plugsched/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "Run the scheduler, API server and Slack bot",
	RunE:  run,
}

func run(cmd *cobra.Command, _ []string) error {
	logger := charmer.GetLogger(cmd)

	m, err := New(viper.GetViper(), prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("monitor starting", "version", cmd.Root().Version)
	defer logger.Info("monitor stopped")
	return m.Run(ctx)
}

func New(cfg *viper.Viper, registry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	timezone, err := time.LoadLocation(cfg.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	devices, err := device.LoadFromFile(cfg.GetString("devices.file"))
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	return taskmanager.New(makeTasks(cfg, devices, timezone, registry, logger)...), nil
}

func makeTasks(cfg *viper.Viper, devices device.Registry, timezone *time.Location, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	s := store.NewFileStore(cfg.GetString("store.path"))
	client := tuya.NewClient(
		tuyaConfig(cfg),
		irConfig(cfg),
		instrumentedHTTPClient(requestCounter, requestDuration),
		l.With("component", "tuya"),
	)
	if registry != nil {
		registry.MustRegister(requestCounter, requestDuration)
	}

	// Slack app for the bot; the notifier posts through a plain client
	var slackApp *slackapp.SlackApp
	notifiers := notifier.Notifiers{notifier.SLogNotifier{Logger: l.With("component", "notifier")}}
	if token := cfg.GetString("slack.token"); token != "" {
		slackApp = slackapp.NewSlackApp(
			slack.New(token, slack.OptionAppLevelToken(cfg.GetString("slack.app_token"))),
			l.With("component", "slackbot"),
		)
		notifiers = append(notifiers, &notifier.SlackNotifier{
			Logger:      l.With("component", "notifier"),
			SlackSender: slack.New(token),
		})
	}

	// duty-cycle engine. only runs when the registry has an interval device
	intervalDevice, hasInterval := devices.IntervalDevice()
	engine := dutycycle.NewEngine(s, client, intervalDevice.ID, intervalDevice.ControlCode, l.With("component", "dutycycle"))
	if hasInterval {
		tasks = append(tasks, engine)
	}

	publisher := pubsub.New[coordinator.Result](l.With("component", "pubsub"))
	c := coordinator.New(s, devices, client, timezone, publisher, notifiers, l.With("component", "coordinator"))
	tasks = append(tasks, &scheduler.Runner{
		Task:     scheduler.TaskFunc(func(ctx context.Context) error { _, err := c.RunScheduleCheck(ctx); return err }),
		Interval: cfg.GetDuration("check.interval"),
		Logger:   l.With("component", "scheduler"),
	})

	// Collector
	coll := &collector.Collector{Publisher: publisher, DutyCycle: engine, Logger: l.With("component", "collector")}
	if registry != nil {
		registry.MustRegister(coll)
	}
	tasks = append(tasks, coll)

	// Prometheus server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("prometheus.addr"))))

	// API & health endpoints
	h := health.New(publisher, l.With("component", "health"))
	tasks = append(tasks, h)
	r := api.New(s, devices, c, engine, client, timezone, cfg.GetString("cron.token"), l.With("component", "api")).Router()
	r.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("server.addr"), r))

	// Slack bot
	if slackApp != nil {
		tasks = append(tasks, bot.New(slackApp, s, devices, c, engine, timezone, l.With("component", "bot")))
	}

	return tasks
}

func tuyaConfig(cfg *viper.Viper) tuya.Config {
	return tuya.Config{
		AccessID:  cfg.GetString("tuya.access_id"),
		AccessKey: cfg.GetString("tuya.access_key"),
		BaseURL:   cfg.GetString("tuya.base_url"),
	}
}

func irConfig(cfg *viper.Viper) tuya.IRConfig {
	return tuya.IRConfig{
		GatewayID:  cfg.GetString("ir.gateway_id"),
		RemoteID:   cfg.GetString("ir.remote_id"),
		CategoryID: cfg.GetInt("ir.category_id"),
		KeyID:      cfg.GetInt("ir.key_id"),
		Mode:       cfg.GetInt("ir.mode"),
		Temp:       cfg.GetInt("ir.temp"),
		Wind:       cfg.GetInt("ir.wind"),
	}
}
