package reminder

import "time"

// Policy holds the time-window constants that drive the engine.
type Policy struct {
	// MaxAttempts is the number of notifications an occurrence gets before quarantine.
	MaxAttempts int
	// RetryInterval is the minimum gap between two notifications of the same task.
	RetryInterval time.Duration
	// PageSize caps each due class and each resolver strategy.
	PageSize int
	// AckWindow limits the recency cohort to tasks notified this recently. Zero disables the limit.
	AckWindow time.Duration
	// Location is the zone recurrence arithmetic runs in.
	Location *time.Location
}

// DefaultPolicy returns the reference policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		RetryInterval: 10 * time.Minute,
		PageSize:      50,
		AckWindow:     5 * time.Minute,
		Location:      time.Local,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = d.RetryInterval
	}
	if p.PageSize <= 0 {
		p.PageSize = d.PageSize
	}
	if p.AckWindow < 0 {
		p.AckWindow = 0
	}
	if p.Location == nil {
		p.Location = d.Location
	}
	return p
}
