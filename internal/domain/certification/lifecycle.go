package certification

import "github.com/okian/accessreg/internal/domain/model"

// Default deactivation reasons.
const (
	DefaultExpirationReason = "Certification expired"
	SupersededReason        = "Superseded by new certification"
)

// Evaluate applies time-based expiration to cert at height now. When cert is
// active and now is past its expiration date, it returns the deactivated
// certification and the history entry recording it. Otherwise it returns cert
// unchanged and a nil entry. Evaluate has no side effects, so applying it to
// its own result never produces a second entry.
func Evaluate(cert model.Certification, now uint64, reason string) (model.Certification, *model.CertificationHistory) {
	if !cert.IsActive || now <= cert.ExpirationDate {
		return cert, nil
	}
	return deactivate(cert, now, reason)
}

func deactivate(cert model.Certification, now uint64, reason string) (model.Certification, *model.CertificationHistory) {
	cert.IsActive = false
	return cert, &model.CertificationHistory{
		CertificationID:  cert.ID,
		FacilityID:       cert.FacilityID,
		IssueDate:        cert.IssueDate,
		ExpirationDate:   cert.ExpirationDate,
		Level:            cert.Level,
		Certifier:        cert.Certifier,
		RevocationDate:   now,
		RevocationReason: reason,
	}
}
