// README: Eligibility classifier; opaque profile labels plus cooldown rules.
package donor

import (
	"strings"
	"time"
)

// Classification is the engine's view of a donor's readiness.
type Classification struct {
	Ready bool
	Label string
}

// Classifier decides whether a donor is ready to donate right now. Labels
// come from the profile service and are opaque; unknown or missing labels
// classify as not-ready, never as an error, so a malformed upstream record
// degrades a search instead of aborting it.
type Classifier struct {
	// Cooldown is the minimum interval since the last donation.
	Cooldown time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewClassifier(cooldownDays int) Classifier {
	return Classifier{Cooldown: time.Duration(cooldownDays) * 24 * time.Hour}
}

func (c Classifier) Classify(status string, lastDonation *time.Time) Classification {
	label := strings.ToLower(strings.TrimSpace(status))
	if label == "" {
		label = "unknown"
	}

	if !strings.Contains(label, "eligible") || strings.Contains(label, "ineligible") {
		return Classification{Ready: false, Label: label}
	}
	if lastDonation != nil {
		now := time.Now()
		if c.Now != nil {
			now = c.Now()
		}
		if now.Sub(*lastDonation) < c.Cooldown {
			return Classification{Ready: false, Label: "cooldown"}
		}
	}
	return Classification{Ready: true, Label: label}
}

// ClassifyDonor applies Classify to a snapshot.
func (c Classifier) ClassifyDonor(d Donor) Classification {
	return c.Classify(d.EligibilityStatus, d.LastDonationDate)
}
