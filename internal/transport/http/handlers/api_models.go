package handlers

import "time"

// HealthResponse is returned by the liveness probe.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports each dependency check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// EmptyResponse is the `{}` body of successful updates.
type EmptyResponse struct{}
