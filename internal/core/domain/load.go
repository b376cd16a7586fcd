package domain

// LoadMetric is a snapshot of host load used by the load admission gate.
// Both values are percentages in [0, 100].
type LoadMetric struct {
	CPUUsage  float64
	LoadUsage float64
}
