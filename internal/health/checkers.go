package health

import (
	"context"
	"time"

	"github.com/scimgate/scimgate/internal/store"
)

// StoreChecker checks the health of the identity store
type StoreChecker struct {
	store    store.Store
	critical bool
}

// NewStoreChecker creates a new StoreChecker (marked as critical)
func NewStoreChecker(s store.Store) *StoreChecker {
	return &StoreChecker{store: s, critical: true}
}

// Name returns the checker name
func (s *StoreChecker) Name() string {
	return "store"
}

// IsCritical returns true if this component is critical for readiness
func (s *StoreChecker) IsCritical() bool {
	return s.critical
}

// Check pings the store and measures latency
func (s *StoreChecker) Check(ctx context.Context) ComponentStatus {
	start := time.Now()
	err := s.store.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return ComponentStatus{
			Status:    "down",
			LatencyMS: float64(latency.Milliseconds()),
			Details:   err.Error(),
			CheckedAt: time.Now().UTC().Format(time.RFC3339),
		}
	}

	status := "up"
	details := ""
	if latency > 500*time.Millisecond {
		status = "degraded"
		details = "high latency"
	}

	return ComponentStatus{
		Status:    status,
		LatencyMS: float64(latency.Milliseconds()),
		Details:   details,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
