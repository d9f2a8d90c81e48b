package donor

import (
	"testing"
	"time"
)

func TestClassify_Labels(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Classifier{Cooldown: 90 * 24 * time.Hour, Now: func() time.Time { return now }}

	tests := []struct {
		name      string
		status    string
		wantReady bool
		wantLabel string
	}{
		{"plain eligible", "eligible", true, "eligible"},
		{"case insensitive", "Eligible", true, "eligible"},
		{"containment", "currently ELIGIBLE to donate", true, "currently eligible to donate"},
		{"ineligible is not eligible", "ineligible", false, "ineligible"},
		{"deferred", "deferred_14d", false, "deferred_14d"},
		{"empty label", "", false, "unknown"},
		{"whitespace label", "   ", false, "unknown"},
		{"garbage label", "zzz-unrecognised", false, "zzz-unrecognised"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.status, nil)
			if got.Ready != tt.wantReady {
				t.Errorf("Classify(%q).Ready = %v, want %v", tt.status, got.Ready, tt.wantReady)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("Classify(%q).Label = %q, want %q", tt.status, got.Label, tt.wantLabel)
			}
		})
	}
}

func TestClassify_Cooldown(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c := Classifier{Cooldown: 90 * 24 * time.Hour, Now: func() time.Time { return now }}

	recent := now.AddDate(0, 0, -30)
	got := c.Classify("eligible", &recent)
	if got.Ready {
		t.Error("expected not-ready 30 days after donation with 90-day cooldown")
	}
	if got.Label != "cooldown" {
		t.Errorf("expected cooldown label, got %q", got.Label)
	}

	old := now.AddDate(0, 0, -120)
	if got := c.Classify("eligible", &old); !got.Ready {
		t.Error("expected ready 120 days after donation with 90-day cooldown")
	}

	// Exactly at the boundary counts as ready.
	boundary := now.Add(-90 * 24 * time.Hour)
	if got := c.Classify("eligible", &boundary); !got.Ready {
		t.Error("expected ready exactly at cooldown boundary")
	}
}

func TestClassify_CooldownDoesNotRescueBadLabel(t *testing.T) {
	c := NewClassifier(90)
	old := time.Now().AddDate(-1, 0, 0)
	if got := c.Classify("deferred_permanent", &old); got.Ready {
		t.Error("cooldown expiry must not make a non-eligible label ready")
	}
}
