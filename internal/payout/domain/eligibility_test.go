package domain_test

import (
	"testing"
	"time"

	affiliatedomain "github.com/smallbiznis/partnerly/internal/affiliate/domain"
	payoutdomain "github.com/smallbiznis/partnerly/internal/payout/domain"
	"github.com/stretchr/testify/assert"
)

const termsVersion = "2025-01"

func compliantProfile() *affiliatedomain.AffiliateProfile {
	accepted := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	return &affiliatedomain.AffiliateProfile{
		Status:                 affiliatedomain.StatusActive,
		PayoutDestinationID:    "acct_123",
		PayoutDestinationReady: true,
		TermsAcceptedAt:        &accepted,
		TermsVersion:           termsVersion,
		TaxLegalName:           "Alice Ltd",
		TaxCountry:             "DE",
		TaxID:                  "DE123456789",
	}
}

func TestHoldReasonsCompliantProfile(t *testing.T) {
	assert.Empty(t, payoutdomain.HoldReasons(compliantProfile(), termsVersion))
}

func TestHoldReasonsMissingProfile(t *testing.T) {
	assert.Equal(t, []string{payoutdomain.HoldAffiliateInactive}, payoutdomain.HoldReasons(nil, termsVersion))
}

func TestHoldReasonsEnumeratesEveryFailure(t *testing.T) {
	profile := compliantProfile()
	profile.Status = affiliatedomain.StatusSuspended
	profile.TermsVersion = "2024-06"
	profile.TaxID = ""
	profile.PayoutDestinationID = ""

	reasons := payoutdomain.HoldReasons(profile, termsVersion)
	assert.ElementsMatch(t, []string{
		payoutdomain.HoldAffiliateInactive,
		payoutdomain.HoldTermsNotAccepted,
		payoutdomain.HoldTaxInfoIncomplete,
		payoutdomain.HoldDestinationMissing,
	}, reasons)
}

func TestHoldReasonsDestinationNotReady(t *testing.T) {
	profile := compliantProfile()
	profile.PayoutDestinationReady = false

	assert.Equal(t, []string{payoutdomain.HoldDestinationNotReady}, payoutdomain.HoldReasons(profile, termsVersion))
}

func TestHoldReasonsTermsVersionRollover(t *testing.T) {
	profile := compliantProfile()

	assert.Empty(t, payoutdomain.HoldReasons(profile, termsVersion))
	// The program moved to a newer version; an old acceptance no longer counts.
	assert.Equal(t, []string{payoutdomain.HoldTermsNotAccepted}, payoutdomain.HoldReasons(profile, "2026-01"))
}

func TestHoldReasonsBadCountryShape(t *testing.T) {
	profile := compliantProfile()
	profile.TaxCountry = "Germany"

	assert.Equal(t, []string{payoutdomain.HoldTaxInfoIncomplete}, payoutdomain.HoldReasons(profile, termsVersion))
}
