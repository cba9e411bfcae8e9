// Package scenario drives the registry end to end over its HTTP API and
// verifies every value the registry reports along the way.
package scenario

import (
	"errors"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL  = "http://localhost:9080"
	DefaultDeployer = "deployer"
	DefaultTimeout  = 30 * time.Second
	DefaultRounding = "truncate"

	// ValidityPeriod is the certification lifetime used by the run.
	ValidityPeriod = 500
	// ExpiryOffset is how far past issue the clock is moved to expire it.
	ExpiryOffset = 600
	// FindingCount is the number of findings recorded on the assessment.
	FindingCount = 3
)

// ErrVerification reports a value the registry returned that does not match
// the expected one.
var ErrVerification = errors.New("scenario verification failed")

// Config holds configuration for a scenario run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Deployer string        // Principal administering every component
	Timeout  time.Duration // HTTP request timeout
	Rounding string        // Average rounding the server is configured with
	Fresh    bool          // Expect an empty registry: every id starts at 1
}

// Report summarizes a completed run.
type Report struct {
	FacilityID      uint64
	AssessmentID    uint64
	CertificationID uint64
	PlanID          uint64
	IssuedAt        uint64
	ExpiredAt       uint64
	Average         uint64
	Steps           int
	StartTime       time.Time
	Duration        time.Duration
}
