// Package scheduler drives the reminder engine on a fixed tick.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// Tick is the polling interval.
	Tick time.Duration
	// NotifyTimeout bounds a single Send call.
	NotifyTimeout time.Duration
	// RecoveryAt is the start of the daily recovery window as an offset from local midnight.
	RecoveryAt time.Duration
	// RecoveryWindow is how long after RecoveryAt recovery may run.
	RecoveryWindow time.Duration
	// RecoveryMinSpacing prevents a second recovery run while the loop is still inside the window.
	RecoveryMinSpacing time.Duration
	// Location is the zone the recovery window and message times use.
	Location *time.Location
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Tick:               60 * time.Second,
		NotifyTimeout:      15 * time.Second,
		RecoveryAt:         0,
		RecoveryWindow:     5 * time.Minute,
		RecoveryMinSpacing: time.Hour,
		Location:           time.Local,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	out := *c
	if out.Tick <= 0 {
		out.Tick = d.Tick
	}
	if out.NotifyTimeout <= 0 {
		out.NotifyTimeout = d.NotifyTimeout
	}
	if out.RecoveryWindow <= 0 {
		out.RecoveryWindow = d.RecoveryWindow
	}
	if out.RecoveryMinSpacing <= 0 {
		out.RecoveryMinSpacing = d.RecoveryMinSpacing
	}
	if out.Location == nil {
		out.Location = d.Location
	}
	return &out
}

// InRecoveryWindow reports whether now falls inside the daily recovery window.
func (c *Config) InRecoveryWindow(now time.Time) bool {
	local := now.In(c.Location)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, c.Location).Add(c.RecoveryAt)
	return !local.Before(start) && local.Before(start.Add(c.RecoveryWindow))
}
