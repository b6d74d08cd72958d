package canvas

// Health is the cached portfolio health label of a canvas.
type Health string

const (
	HealthNotStarted Health = "Not Started"
	HealthInProgress Health = "In Progress"
	HealthOnTrack    Health = "On Track"
	HealthAtRisk     Health = "At Risk"
)

var Healths = []Health{HealthNotStarted, HealthInProgress, HealthOnTrack, HealthAtRisk}

func (h Health) Valid() bool {
	for _, v := range Healths {
		if v == h {
			return true
		}
	}
	return false
}

// ComputeHealth derives the indicator from every proof point status on a
// canvas. Precedence: stalled, then nothing started, then observed.
func ComputeHealth(statuses []ProofPointStatus) Health {
	started := false
	observed := false
	for _, s := range statuses {
		switch s {
		case StatusStalled:
			return HealthAtRisk
		case StatusObserved:
			observed = true
		}
		if s != StatusNotStarted {
			started = true
		}
	}
	switch {
	case !started:
		return HealthNotStarted
	case observed:
		return HealthOnTrack
	default:
		return HealthInProgress
	}
}
