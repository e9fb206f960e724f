package peer

import (
	"math"
	"math/rand"
)

// signal is one simulated measurement. Each tick moves it along its
// pattern.
type signal struct {
	name    string
	pattern string
	base    float64
	amp     float64
	period  int
	value   float64
}

func defaultSignals() []*signal {
	return []*signal{
		{name: "temperature", pattern: "sine", base: 21.5, amp: 3, period: 40},
		{name: "pressure", pattern: "noise", base: 101.3, amp: 0.4},
		{name: "counter", pattern: "ramp", base: 0, amp: 1, period: 100},
		{name: "supply_voltage", pattern: "steady", base: 12},
	}
}

func defaultParameters() map[string]float64 {
	return map[string]float64{
		"gain":         1,
		"offset":       0,
		"threshold":    0.5,
		"sample_rate":  100,
		"filter_alpha": 0.25,
	}
}

func (s *signal) advance(tick int) {
	switch s.pattern {
	case "sine":
		phase := 2 * math.Pi * float64(tick%s.period) / float64(s.period)
		s.value = s.base + s.amp*math.Sin(phase)
	case "noise":
		s.value = s.base + s.amp*(rand.Float64()*2-1)
	case "ramp":
		s.value = s.base + s.amp*float64(tick%s.period)
	default:
		s.value = s.base
	}
}
