// Package recovery implements the time-based ramp used to restore traffic to
// an endpoint that recently failed.
package recovery

import "time"

// RecoverRatio maps the time elapsed since a failure to the fraction of
// nominal traffic the endpoint may receive. Traffic grows in Phase discrete
// steps across Duration.
type RecoverRatio struct {
	Duration time.Duration `yaml:"duration" mapstructure:"duration"`
	Phase    int           `yaml:"phase"    mapstructure:"phase"`
	Weight   int           `yaml:"weight"   mapstructure:"weight"`
}

// DefaultRecoverRatio ramps over 15s in 10 steps.
func DefaultRecoverRatio() RecoverRatio {
	return RecoverRatio{
		Duration: 15 * time.Second,
		Phase:    10,
		Weight:   10000,
	}
}

// Ratio returns the allowed traffic fraction for elapsed. ok is false once
// the ramp is complete, after which callers should stop consulting it.
func (r RecoverRatio) Ratio(elapsed time.Duration) (ratio float64, ok bool) {
	durationMs := r.Duration.Milliseconds()
	if durationMs <= 0 || r.Phase <= 0 || r.Weight <= 0 {
		return 0, false
	}

	elapsedMs := elapsed.Milliseconds()
	if elapsedMs >= durationMs {
		return 0, false
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}

	phase := elapsedMs * int64(r.Phase) / durationMs
	step := int64(r.Weight / r.Phase)
	return float64((phase+1)*step) / float64(r.Weight), true
}
