// internal/game/rules.go
package game

import (
	"fmt"
	"time"
)

// Rules defines the tunable parameters of both games. A zero HandSize, DealerStandsOn or
// MaxAttempts is replaced by its default; a zero timer or pause disables it.
type Rules struct {
	TurnTimerSec    int `json:"turnTimerSec"`    // seconds a player has to act; 0 disables the turn timer
	TimeoutGraceSec int `json:"timeoutGraceSec"` // extra seconds before a non-owning client recovers an expired turn
	HandSize        int `json:"handSize"`        // Color Clash cards dealt to each player
	DealerStandsOn  int `json:"dealerStandsOn"`  // Flip21 dealer stops drawing at this total or above
	DealerPauseMs   int `json:"dealerPauseMs"`   // pause between sequential dealer draws
	MaxAttempts     int `json:"maxAttempts"`     // conditional-write attempts before giving up on a mutation
}

// DefaultRules returns the standard settings.
func DefaultRules() Rules {
	return Rules{
		TurnTimerSec:    30,
		TimeoutGraceSec: 3,
		HandSize:        7,
		DealerStandsOn:  17,
		DealerPauseMs:   600,
		MaxAttempts:     3,
	}
}

// TurnDuration is the configured turn timer as a duration.
func (r Rules) TurnDuration() time.Duration {
	return time.Duration(r.TurnTimerSec) * time.Second
}

// TimeoutGrace is the recovery grace period as a duration.
func (r Rules) TimeoutGrace() time.Duration {
	return time.Duration(r.TimeoutGraceSec) * time.Second
}

// DealerPause is the delay between dealer draws.
func (r Rules) DealerPause() time.Duration {
	return time.Duration(r.DealerPauseMs) * time.Millisecond
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.HandSize <= 0 {
		r.HandSize = d.HandSize
	}
	if r.DealerStandsOn <= 0 {
		r.DealerStandsOn = d.DealerStandsOn
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	return r
}

// Update will update the rules with the new values provided.
// If a rule is not set or defined, it will be ignored, and the old value will persist.
func (r *Rules) Update(newRules map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newRules[key]
		if !exists || val == nil {
			return nil
		}
		var v int
		// JSON numbers decode as float64
		switch n := val.(type) {
		case float64:
			v = int(n)
		case int:
			v = n
		default:
			return fmt.Errorf("invalid type for %s", key)
		}
		if v < minVal {
			return fmt.Errorf("%s must be at least %d", key, minVal)
		}
		*field = v
		return nil
	}

	fields := []struct {
		field *int
		key   string
		min   int
	}{
		{&r.TurnTimerSec, "turnTimerSec", 0},
		{&r.TimeoutGraceSec, "timeoutGraceSec", 0},
		{&r.HandSize, "handSize", 1},
		{&r.DealerStandsOn, "dealerStandsOn", 2},
		{&r.DealerPauseMs, "dealerPauseMs", 0},
		{&r.MaxAttempts, "maxAttempts", 1},
	}
	for _, f := range fields {
		if err := assignInt(f.field, f.key, f.min); err != nil {
			return err
		}
	}
	return nil
}

// ParseRules converts a map of rules to a Rules struct on top of current, validating types.
func ParseRules(rules map[string]interface{}, current Rules) (Rules, error) {
	out := current
	err := out.Update(rules)
	return out, err
}
