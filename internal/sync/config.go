package sync

import "time"

// Config carries the tuning knobs of the catch-up and drift-correction
// procedures. The defaults are calibrated against the YouTube iframe
// player's seek acknowledgment latency; other engines may need different
// settle delays and retry counts.
type Config struct {
	// DriftThreshold is the maximum tolerated distance in seconds between
	// the engine position and the projected position before a corrective
	// seek is issued.
	DriftThreshold float64
	// CatchUpSeekEpsilon is the residual offset in seconds after a catch-up
	// seek that triggers the single bounded re-seek.
	CatchUpSeekEpsilon float64
	// PostPlayThreshold is the drift in seconds tolerated right after
	// starting playback during catch-up.
	PostPlayThreshold float64
	// CheckInterval is the period of the drift-check loop.
	CheckInterval time.Duration
	// SettleDelay is how long a seek is given to apply before re-reading
	// the engine position.
	SettleDelay time.Duration
	// TrailingHold keeps the syncing mode active after a corrective action
	// so engine callbacks it triggered are not mistaken for user actions.
	TrailingHold time.Duration
	// SeekRetries bounds re-seek attempts during catch-up.
	SeekRetries int
	// ReadyTimeout bounds the wait for the engine's ready signal.
	ReadyTimeout time.Duration
	// AutoStopDelay is the grace period between a terminal engine error on
	// the host and the room being reset.
	AutoStopDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		DriftThreshold:     2.5,
		CatchUpSeekEpsilon: 1.0,
		PostPlayThreshold:  2.0,
		CheckInterval:      15 * time.Second,
		SettleDelay:        500 * time.Millisecond,
		TrailingHold:       time.Second,
		SeekRetries:        1,
		ReadyTimeout:       10 * time.Second,
		AutoStopDelay:      3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = def.DriftThreshold
	}
	if c.CatchUpSeekEpsilon <= 0 {
		c.CatchUpSeekEpsilon = def.CatchUpSeekEpsilon
	}
	if c.PostPlayThreshold <= 0 {
		c.PostPlayThreshold = def.PostPlayThreshold
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = def.CheckInterval
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = def.SettleDelay
	}
	if c.TrailingHold <= 0 {
		c.TrailingHold = def.TrailingHold
	}
	if c.SeekRetries < 0 {
		c.SeekRetries = def.SeekRetries
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = def.ReadyTimeout
	}
	if c.AutoStopDelay <= 0 {
		c.AutoStopDelay = def.AutoStopDelay
	}
	return c
}
