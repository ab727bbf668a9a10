package domain

import (
	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
)

// Hold reasons enumerated when the eligibility gate keeps a commission back.
const (
	HoldAffiliateInactive   = "affiliate_inactive"
	HoldTermsNotAccepted    = "terms_not_accepted"
	HoldTaxInfoIncomplete   = "tax_info_incomplete"
	HoldDestinationMissing  = "payout_destination_missing"
	HoldDestinationNotReady = "payout_destination_not_ready"
)

// HoldReasons evaluates the compliance gate against the current profile
// state and the currently required terms version. An empty slice means the
// affiliate may be paid. Every failing condition is reported, not just the
// first, so operators see the full picture in one audit event.
func HoldReasons(profile *affiliatedomain.AffiliateProfile, requiredTermsVersion string) []string {
	reasons := make([]string, 0, 4)

	if profile == nil {
		return append(reasons, HoldAffiliateInactive)
	}
	if profile.Status != affiliatedomain.StatusActive {
		reasons = append(reasons, HoldAffiliateInactive)
	}
	if profile.TermsAcceptedAt == nil || profile.TermsVersion != requiredTermsVersion {
		reasons = append(reasons, HoldTermsNotAccepted)
	}
	if !profile.HasCompleteTaxInfo() {
		reasons = append(reasons, HoldTaxInfoIncomplete)
	}
	if profile.PayoutDestinationID == "" {
		reasons = append(reasons, HoldDestinationMissing)
	} else if !profile.PayoutDestinationReady {
		reasons = append(reasons, HoldDestinationNotReady)
	}

	return reasons
}
