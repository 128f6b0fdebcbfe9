package config

import (
	"fmt"
	"log/slog"

	"github.com/fentz26/nudge/internal/notify"
	"github.com/fentz26/nudge/internal/notify/command"
	"github.com/fentz26/nudge/internal/notify/webhook"
	"github.com/fentz26/nudge/internal/reminder"
	"github.com/fentz26/nudge/internal/scheduler"
)

// ReminderPolicy converts the policy section.
func (c *Config) ReminderPolicy() (reminder.Policy, error) {
	loc, err := c.Location()
	if err != nil {
		return reminder.Policy{}, err
	}
	return reminder.Policy{
		MaxAttempts:   c.Policy.MaxAttempts,
		RetryInterval: c.Policy.RetryInterval.Duration,
		PageSize:      c.Policy.PageSize,
		AckWindow:     c.Policy.AckWindow.Duration,
		Location:      loc,
	}, nil
}

// SchedulerConfig converts the scheduler section.
func (c *Config) SchedulerConfig() (*scheduler.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return &scheduler.Config{
		Tick:               c.Scheduler.Tick.Duration,
		NotifyTimeout:      c.Scheduler.NotifyTimeout.Duration,
		RecoveryAt:         c.RecoveryOffset(),
		RecoveryWindow:     c.Scheduler.RecoveryWindow.Duration,
		RecoveryMinSpacing: c.Scheduler.RecoveryMinSpacing.Duration,
		Location:           loc,
	}, nil
}

// Notifier builds the notifier selected by notify.driver.
func (c *Config) Notifier(logger *slog.Logger) (notify.Notifier, error) {
	switch c.Notify.Driver {
	case "", "log":
		return notify.NewLog(logger), nil
	case "webhook":
		w := c.Notify.Webhook
		return webhook.New(w.URL, w.Headers, w.Timeout.Duration), nil
	case "command":
		cmd := c.Notify.Command
		n := command.New(cmd.Program, cmd.Args, cmd.Allow...)
		if !n.IsAllowed() {
			return nil, fmt.Errorf("notify program not allowed: %s (add it to notify.command.allow)", cmd.Program)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify driver %q", c.Notify.Driver)
	}
}
