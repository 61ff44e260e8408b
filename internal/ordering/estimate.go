package ordering

import (
	"fmt"
	"time"
)

// DefaultAverageTurn is the assumed length of one turn when the settings
// store supplies nothing better.
const DefaultAverageTurn = 3*time.Minute + 30*time.Second

// Estimator produces advisory time-to-turn estimates. Estimates never gate
// a transition.
type Estimator struct {
	AverageTurn time.Duration
}

func NewEstimator(averageTurn time.Duration) Estimator {
	if averageTurn <= 0 {
		averageTurn = DefaultAverageTurn
	}
	return Estimator{AverageTurn: averageTurn}
}

// Wait estimates the time until the signup at the given 1-based position
// gets its turn. Non-positive positions estimate to zero.
func (e Estimator) Wait(position int) time.Duration {
	if position <= 0 {
		return 0
	}
	return time.Duration(position) * e.AverageTurn
}

// FormatWait renders the estimate for display. Position 1 is "next" rather
// than a minute count.
func (e Estimator) FormatWait(position int) string {
	if position <= 1 {
		return "next"
	}
	mins := int(e.Wait(position).Round(time.Minute) / time.Minute)
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("~%d min", mins)
}

// Queue health labels, monotonic in queue size. Display-only.
const (
	HealthIdle    = "idle"
	HealthLight   = "light"
	HealthSteady  = "steady"
	HealthBusy    = "busy"
	HealthPacked  = "packed"
	healthLightN  = 5
	healthSteadyN = 12
	healthBusyN   = 25
)

// Health classifies queue depth into a qualitative label.
func Health(queueLength int) string {
	switch {
	case queueLength <= 0:
		return HealthIdle
	case queueLength <= healthLightN:
		return HealthLight
	case queueLength <= healthSteadyN:
		return HealthSteady
	case queueLength <= healthBusyN:
		return HealthBusy
	default:
		return HealthPacked
	}
}
