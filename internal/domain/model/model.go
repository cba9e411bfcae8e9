// Package model contains the registry records passed between layers.
//
// All identifiers are opaque uint64 values assigned by the owning component,
// starting at 1. Dates are clock heights, not wall time.
package model

// Principal identifies a caller. The registry treats it as opaque.
type Principal string

// Facility is a registered site. Immutable once registered.
type Facility struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	Location         string `json:"location"`
	FacilityType     uint32 `json:"facility_type"`
	RegistrationDate uint64 `json:"registration_date"`
}

// Assessment is a compliance assessment of one facility.
type Assessment struct {
	ID              uint64    `json:"id"`
	FacilityID      uint64    `json:"facility_id"`
	Date            uint64    `json:"date"`
	Assessor        Principal `json:"assessor"`
	ComplianceLevel uint32    `json:"compliance_level"`
	// FindingsCount only grows, one per recorded finding.
	FindingsCount uint64 `json:"findings_count"`
}

// Finding is a deficiency recorded during an assessment.
type Finding struct {
	ID           uint64 `json:"id"`
	FacilityID   uint64 `json:"facility_id"`
	AssessmentID uint64 `json:"assessment_id"`
	Severity     uint32 `json:"severity"`
	Description  string `json:"description"`
	// TargetSeverity is zero when no target was given.
	TargetSeverity uint32 `json:"target_severity,omitempty"`
}

// Certification is an accessibility certification issued to a facility.
type Certification struct {
	ID             uint64    `json:"id"`
	FacilityID     uint64    `json:"facility_id"`
	IssueDate      uint64    `json:"issue_date"`
	ExpirationDate uint64    `json:"expiration_date"`
	Level          uint32    `json:"level"`
	Certifier      Principal `json:"certifier"`
	IsActive       bool      `json:"is_active"`
}

// CertificationHistory is written once, when a certification becomes inactive.
type CertificationHistory struct {
	CertificationID  uint64    `json:"certification_id"`
	FacilityID       uint64    `json:"facility_id"`
	IssueDate        uint64    `json:"issue_date"`
	ExpirationDate   uint64    `json:"expiration_date"`
	Level            uint32    `json:"level"`
	Certifier        Principal `json:"certifier"`
	RevocationDate   uint64    `json:"revocation_date"`
	RevocationReason string    `json:"revocation_reason"`
}

// ImprovementPlan is a remediation task for one finding.
type ImprovementPlan struct {
	ID          uint64    `json:"id"`
	FacilityID  uint64    `json:"facility_id"`
	FindingID   uint64    `json:"finding_id"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   uint64    `json:"created_at"`
	TargetDate  uint64    `json:"target_date"`
	// CompletedDate is set by the first transition to Completed and never again.
	CompletedDate uint64    `json:"completed_date"`
	AssignedTo    Principal `json:"assigned_to"`
	UpdateCount   uint64    `json:"update_count"`
}

// ImprovementUpdate is one entry of a plan's status log.
type ImprovementUpdate struct {
	PlanID    uint64    `json:"plan_id"`
	UpdateID  uint64    `json:"update_id"`
	Date      uint64    `json:"date"`
	Status    Status    `json:"status"`
	Notes     string    `json:"notes"`
	UpdatedBy Principal `json:"updated_by"`
}

// FeedbackEntry is a single user rating. Immutable once submitted.
type FeedbackEntry struct {
	ID         uint64    `json:"id"`
	FacilityID uint64    `json:"facility_id"`
	User       Principal `json:"user"`
	Date       uint64    `json:"date"`
	Category   uint32    `json:"category"`
	Rating     uint32    `json:"rating"`
	Comments   string    `json:"comments"`
}

// CategoryRating aggregates all ratings for a (facility, category) pair.
type CategoryRating struct {
	FacilityID   uint64 `json:"facility_id"`
	Category     uint32 `json:"category"`
	TotalRatings uint64 `json:"total_ratings"`
	SumRatings   uint64 `json:"sum_ratings"`
	LastUpdated  uint64 `json:"last_updated"`
}
