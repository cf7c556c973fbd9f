// Package button turns a raw debounced input line into short/long
// press events. The classifier is pure logic: time always arrives as a
// parameter, so tests never sleep on the real poll cadence.
package button

import (
	"time"

	"recbutton-go/types"
)

// Classifier tracks debounce and long-press state for one input.
type Classifier struct {
	debounce  time.Duration
	longPress time.Duration

	stable       bool // debounced level, true = pressed
	pending      bool
	pendingSet   bool
	pendingSince time.Time

	pressedAt time.Time
	longFired bool // one long-press fire per hold
}

// NewClassifier creates a classifier. debounce applies to both edges;
// a hold of exactly longPress classifies as long.
func NewClassifier(debounce, longPress time.Duration) *Classifier {
	return &Classifier{debounce: debounce, longPress: longPress}
}

// Process consumes one raw sample. It returns at most one event: a
// confirmed press edge, the one-shot "held past threshold" fire, or a
// release with the measured duration.
func (c *Classifier) Process(raw bool, now time.Time) *types.ButtonEvent {
	if raw == c.stable {
		// Level agrees with the debounced state; discard any pending edge.
		c.pendingSet = false
	} else {
		if !c.pendingSet || c.pending != raw {
			c.pending = raw
			c.pendingSet = true
			c.pendingSince = now
		}
		if now.Sub(c.pendingSince) >= c.debounce {
			c.stable = raw
			c.pendingSet = false
			if raw {
				return c.confirmPress(now)
			}
			return c.confirmRelease(now)
		}
	}

	// Steady hold: fire the long-press notification once. A release
	// edge inside its debounce window holds the fire back; if the
	// release confirms, the hold never reached the threshold.
	if c.stable && !c.pendingSet && !c.longFired && now.Sub(c.pressedAt) >= c.longPress {
		c.longFired = true
		return &types.ButtonEvent{
			Pressed:     true,
			Duration:    now.Sub(c.pressedAt),
			IsLongPress: true,
			At:          now,
		}
	}
	return nil
}

func (c *Classifier) confirmPress(now time.Time) *types.ButtonEvent {
	// Duration measures from the first observation of the edge, not
	// from debounce confirmation.
	c.pressedAt = c.pendingSince
	c.longFired = false
	return &types.ButtonEvent{Pressed: true, At: now}
}

func (c *Classifier) confirmRelease(now time.Time) *types.ButtonEvent {
	held := c.pendingSince.Sub(c.pressedAt)
	if held < 0 {
		held = 0
	}
	// A hold that already fired stays long on release.
	return &types.ButtonEvent{
		Pressed:     false,
		Duration:    held,
		IsLongPress: c.longFired || held >= c.longPress,
		At:          now,
	}
}

// Pressed returns the current debounced level.
func (c *Classifier) Pressed() bool { return c.stable }
