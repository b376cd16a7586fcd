// Package health reports the state of the invocation engine per service.
package health

// SystemStatus represents the overall health state of the system or a service.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ServiceHealth contains call and circuit figures for one service.
type ServiceHealth struct {
	Service          string       `json:"service"`
	Status           SystemStatus `json:"status"`
	Calls            int64        `json:"calls"`
	Failures         int64        `json:"failures"`
	Degraded         int64        `json:"degraded"`
	Rejected         int64        `json:"rejected"`
	ErrorRate        float64      `json:"error_rate"`
	Endpoints        int          `json:"endpoints"`
	OpenCircuits     int          `json:"open_circuits"`
	HalfOpenCircuits int          `json:"half_open_circuits"`
}

// Report contains the full system health report.
type Report struct {
	SystemStatus SystemStatus             `json:"system_status"`
	Services     map[string]ServiceHealth `json:"services"`
}

func worst(a, b SystemStatus) SystemStatus {
	if a == StatusCritical || b == StatusCritical {
		return StatusCritical
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
