package domain

// HealthStatusValue represents the coarse health of a component.
type HealthStatusValue string

const (
	HealthHealthy   HealthStatusValue = "healthy"
	HealthDegraded  HealthStatusValue = "degraded"
	HealthUnhealthy HealthStatusValue = "unhealthy"
	HealthUnknown   HealthStatusValue = "unknown"
)

// HealthStatus describes component health with a human-readable message.
type HealthStatus struct {
	Status  HealthStatusValue
	Message string
	Error   error
}

// NewHealthyStatus creates a healthy status with the given message.
func NewHealthyStatus(message string) *HealthStatus {
	return &HealthStatus{Status: HealthHealthy, Message: message}
}

// NewDegradedStatus creates a degraded status with the given message.
func NewDegradedStatus(message string) *HealthStatus {
	return &HealthStatus{Status: HealthDegraded, Message: message}
}

// NewUnhealthyStatus creates an unhealthy status carrying the last error.
func NewUnhealthyStatus(message string, err error) *HealthStatus {
	return &HealthStatus{Status: HealthUnhealthy, Message: message, Error: err}
}
