// Package bot adds Slack slash commands for checking and steering the
// scheduler.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/internal/device"
	"github.com/homectl/plugsched/internal/dutycycle"
	"github.com/homectl/plugsched/internal/schedule"
	"github.com/homectl/plugsched/internal/store"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

type Bot struct {
	SlackApp
	store    store.Store
	devices  device.Registry
	checker  Checker
	engine   IntervalEngine
	timezone *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

type SlackApp interface {
	AddSlashCommand(string, func(slack.SlashCommand, *socketmode.Client))
	Run(ctx context.Context) error
}

type Checker interface {
	RunScheduleCheck(ctx context.Context) (coordinator.Result, error)
	ResolveSituation(date string) (string, bool, error)
}

type IntervalEngine interface {
	Start(ctx context.Context, onDuration, offDuration time.Duration) error
	Stop(ctx context.Context) error
	Status() (store.IntervalConfig, dutycycle.Phase, bool, error)
}

func New(app SlackApp, s store.Store, registry device.Registry, checker Checker, engine IntervalEngine, timezone *time.Location, logger *slog.Logger) *Bot {
	b := Bot{
		SlackApp: app,
		store:    s,
		devices:  registry,
		checker:  checker,
		engine:   engine,
		timezone: timezone,
		logger:   logger,
		now:      time.Now,
	}

	b.SlackApp.AddSlashCommand("/plugstatus", b.doAndPost(b.onStatus))
	b.SlackApp.AddSlashCommand("/plugoverride", b.doAndPost(b.onOverride))
	b.SlackApp.AddSlashCommand("/pluginterval", b.doAndPost(b.onInterval))
	b.SlackApp.AddSlashCommand("/plugcheck", b.doAndPost(b.onCheck))

	return &b
}

// Run the bot until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("bot started")
	defer b.logger.Debug("bot stopped")
	if err := b.SlackApp.Run(ctx); err != nil {
		return fmt.Errorf("bot: %w", err)
	}
	return nil
}

func (b *Bot) onStatus(_ context.Context, _ ...string) slack.Attachment {
	now := b.now().In(b.timezone)
	nowMinutes := now.Hour()*60 + now.Minute()
	date := now.Format(time.DateOnly)

	situation, usingDefault, err := b.checker.ResolveSituation(date)
	if err != nil {
		return errorAttachment(err)
	}
	schedules, err := b.store.GetDeviceSchedules()
	if err != nil {
		return errorAttachment(err)
	}

	title := "situation: " + situation
	if usingDefault {
		title += " (default)"
	}

	text := make([]string, 0, len(b.devices.Devices))
	for _, dev := range b.devices.Devices {
		line := dev.Name + ": "
		if active, ok := schedule.ActiveEntry(nowMinutes, schedules[dev.ID][situation]); ok {
			line += "expected " + active.Action.String()
		} else {
			line += "no schedule"
		}
		if next, ok := schedule.NextEntry(nowMinutes, schedules[dev.ID][situation]); ok {
			line += ", next " + next.String()
		}
		if override, found, _ := b.store.GetManualOverride(dev.ID); found && override.Active(now) {
			line += fmt.Sprintf(", override until %s", override.Until.In(b.timezone).Format("15:04"))
		}
		text = append(text, line)
	}

	if _, phase, active, err := b.engine.Status(); err == nil && active {
		text = append(text, fmt.Sprintf("interval mode: %s, %s remaining", phase.String(), phase.Remaining))
	}

	return slack.Attachment{
		Color: "good",
		Title: title,
		Text:  strings.Join(text, "\n"),
	}
}

func (b *Bot) onOverride(_ context.Context, args ...string) slack.Attachment {
	const usage = "Usage: override <device> [<minutes>|clear]"
	if len(args) < 1 {
		return slack.Attachment{Color: "bad", Text: "missing device\n" + usage}
	}

	dev, found := b.findDevice(args[0])
	if !found {
		return slack.Attachment{Color: "bad", Text: "unknown device: " + args[0]}
	}

	if len(args) > 1 && args[1] == "clear" {
		if err := b.store.ClearManualOverride(dev.ID); err != nil {
			return errorAttachment(err)
		}
		return slack.Attachment{Color: "good", Text: "cleared override for " + dev.Name}
	}

	minutes := 60
	if len(args) > 1 {
		var err error
		if minutes, err = strconv.Atoi(args[1]); err != nil || minutes <= 0 {
			return slack.Attachment{Color: "bad", Text: "invalid duration: \"" + args[1] + "\"\n" + usage}
		}
	}
	if err := b.store.SetManualOverride(dev.ID, time.Duration(minutes)*time.Minute); err != nil {
		return errorAttachment(err)
	}
	return slack.Attachment{
		Color: "good",
		Text:  fmt.Sprintf("override set for %s (%d minutes)", dev.Name, minutes),
	}
}

func (b *Bot) onInterval(ctx context.Context, args ...string) slack.Attachment {
	const usage = "Usage: interval [start <on minutes> <off minutes>|stop]"
	if len(args) == 0 {
		_, phase, active, err := b.engine.Status()
		if err != nil {
			return errorAttachment(err)
		}
		if !active {
			return slack.Attachment{Text: "interval mode is off"}
		}
		return slack.Attachment{Text: fmt.Sprintf("interval mode: %s, %s remaining", phase.String(), phase.Remaining)}
	}

	switch args[0] {
	case "start":
		if len(args) != 3 {
			return slack.Attachment{Color: "bad", Text: "missing durations\n" + usage}
		}
		onMinutes, err1 := strconv.Atoi(args[1])
		offMinutes, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil || onMinutes <= 0 || offMinutes <= 0 {
			return slack.Attachment{Color: "bad", Text: "invalid durations\n" + usage}
		}
		if err := b.engine.Start(ctx, time.Duration(onMinutes)*time.Minute, time.Duration(offMinutes)*time.Minute); err != nil {
			return errorAttachment(err)
		}
		return slack.Attachment{Color: "good", Text: fmt.Sprintf("interval mode started: %dm on, %dm off", onMinutes, offMinutes)}
	case "stop":
		if err := b.engine.Stop(ctx); err != nil {
			return errorAttachment(err)
		}
		return slack.Attachment{Color: "good", Text: "interval mode stopped"}
	default:
		return slack.Attachment{Color: "bad", Text: usage}
	}
}

func (b *Bot) onCheck(ctx context.Context, _ ...string) slack.Attachment {
	result, err := b.checker.RunScheduleCheck(ctx)
	if err != nil {
		return errorAttachment(err)
	}

	text := make([]string, 0, len(result.Executed)+len(result.Errors))
	for _, executed := range result.Executed {
		text = append(text, executed.Device+": switched "+executed.Action.String())
	}
	for _, failed := range result.Errors {
		text = append(text, failed.DeviceID+": "+failed.Error)
	}
	if len(text) == 0 {
		text = append(text, "nothing to do")
	}

	return slack.Attachment{
		Color: "good",
		Title: "check complete (situation: " + result.Situation + ")",
		Text:  strings.Join(text, "\n"),
	}
}

func (b *Bot) findDevice(name string) (device.Device, bool) {
	if dev, found := b.devices.Get(name); found {
		return dev, true
	}
	for _, dev := range b.devices.Devices {
		if strings.EqualFold(dev.Name, name) {
			return dev, true
		}
	}
	return device.Device{}, false
}

func errorAttachment(err error) slack.Attachment {
	return slack.Attachment{Color: "bad", Text: err.Error()}
}

func (b *Bot) doAndPost(f func(context.Context, ...string) slack.Attachment) func(cmd slack.SlashCommand, c *socketmode.Client) {
	return func(cmd slack.SlashCommand, c *socketmode.Client) {
		a := f(context.Background(), tokenizeText(cmd.Text)...)
		if _, _, err := c.PostMessage(cmd.ChannelID, slack.MsgOptionAttachments(a)); err != nil {
			b.logger.Error("failed to post response", "err", err)
		}
	}
}

func tokenizeText(input string) []string {
	cleanInput := input
	for _, quote := range []string{"“", "”", "'"} {
		cleanInput = strings.ReplaceAll(cleanInput, quote, "\"")
	}
	r := regexp.MustCompile(`[^\s"]+|"([^"]*)"`)
	output := r.FindAllString(cleanInput, -1)

	for index, word := range output {
		output[index] = strings.Trim(word, "\"")
	}
	return output
}
