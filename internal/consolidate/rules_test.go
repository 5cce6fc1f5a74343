package consolidate

import (
	"testing"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(domain.DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

// usage builds a high-risk, in-window usage record for the fixed test clock
// (2026-03-15) unless overridden.
func usage(doc string, weight float64) domain.CertificateUsageRecord {
	return domain.CertificateUsageRecord{
		DocumentNumber:          doc,
		Weight:                  weight,
		DataEverExpected:        true,
		LandingDataExpectedDate: ptr(day("2026-03-09")),
		LandingDataEndDate:      ptr(day("2026-03-20")),
		IsHighRisk:              true,
	}
}

var testNow = day("2026-03-15")

func TestOveruseRule(t *testing.T) {
	t.Run("ClearOveruse", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 80), usage("DOC-B", 80)}
		if !isOverusedAllCerts(100, false, usages, testNow) {
			t.Error("expected 160kg against 100kg landed to be overused")
		}
	})

	t.Run("ExactToleranceIsNotOveruse", func(t *testing.T) {
		// 150 == 100 + 50: the total must strictly exceed landed + tolerance.
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 75), usage("DOC-B", 75)}
		if isOverusedAllCerts(100, false, usages, testNow) {
			t.Error("expected total equal to landed plus tolerance to pass")
		}
	})

	t.Run("JustOverTolerance", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 75), usage("DOC-B", 75.01)}
		if !isOverusedAllCerts(100, false, usages, testNow) {
			t.Error("expected 150.01kg against 100kg landed to be overused")
		}
	})

	t.Run("EstimateWidensTolerance", func(t *testing.T) {
		// Estimates tolerate landed*1.10 + 50 = 160 for a 100kg landing.
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 80), usage("DOC-B", 80)}
		if isOverusedAllCerts(100, true, usages, testNow) {
			t.Error("expected 160kg to be inside the estimate tolerance")
		}

		usages = []domain.CertificateUsageRecord{usage("DOC-A", 80), usage("DOC-B", 80.5)}
		if !isOverusedAllCerts(100, true, usages, testNow) {
			t.Error("expected 160.5kg to exceed the estimate tolerance")
		}
	})

	t.Run("SingleUsageNeverOverused", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 500)}
		if isOverusedAllCerts(100, false, usages, testNow) {
			t.Error("expected a single usage record to pass")
		}
	})

	t.Run("SingleCertificateNeverOverused", func(t *testing.T) {
		// Two usages but both from the same document.
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 100), usage("DOC-A", 100)}
		if isOverusedAllCerts(100, false, usages, testNow) {
			t.Error("expected usages from one certificate to pass")
		}
	})

	t.Run("AllPreApprovedNeverOverused", func(t *testing.T) {
		a, b := usage("DOC-A", 100), usage("DOC-B", 100)
		a.PreApproved, b.PreApproved = true, true
		if isOverusedAllCerts(100, false, []domain.CertificateUsageRecord{a, b}, testNow) {
			t.Error("expected all pre-approved usages to pass")
		}
	})

	t.Run("PreApprovedWeightStillCounts", func(t *testing.T) {
		// Two distinct non-pre-approved certs gate the rule, but the
		// pre-approved weight is included in the total.
		a, b, c := usage("DOC-A", 60), usage("DOC-B", 60), usage("DOC-C", 60)
		c.PreApproved = true
		if !isOverusedAllCerts(100, false, []domain.CertificateUsageRecord{a, b, c}, testNow) {
			t.Error("expected 180kg total including pre-approved to be overused")
		}
	})

	t.Run("NoHighRiskUsageNeverOverused", func(t *testing.T) {
		a, b := usage("DOC-A", 100), usage("DOC-B", 100)
		a.IsHighRisk, b.IsHighRisk = false, false
		if isOverusedAllCerts(100, false, []domain.CertificateUsageRecord{a, b}, testNow) {
			t.Error("expected low-risk usages to pass")
		}
	})

	t.Run("ZeroLandedWeightNeverOverused", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 100), usage("DOC-B", 100)}
		if isOverusedAllCerts(0, false, usages, testNow) {
			t.Error("expected zero landed weight to pass")
		}
	})
}

func TestRetrospectiveWindow(t *testing.T) {
	u := usage("DOC-A", 10)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"BeforeExpected", day("2026-03-01"), true}, // window only checks the end
		{"OnEndDate", day("2026-03-20"), true},
		{"GraceDay", day("2026-03-21"), true},
		{"DayAfterGrace", day("2026-03-22"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := insideRetrospectiveWindow(u, tt.now); got != tt.want {
				t.Errorf("insideRetrospectiveWindow(%s) = %v, want %v", tt.now.Format(domain.DateFormat), got, tt.want)
			}
		})
	}

	t.Run("NoDataExpected", func(t *testing.T) {
		u := usage("DOC-A", 10)
		u.DataEverExpected = false
		if insideRetrospectiveWindow(u, testNow) {
			t.Error("expected record with no data expected to be outside the window")
		}
	})

	t.Run("NilEndDate", func(t *testing.T) {
		u := usage("DOC-A", 10)
		u.LandingDataEndDate = nil
		if insideRetrospectiveWindow(u, testNow) {
			t.Error("expected record without an end date to be outside the window")
		}
	})
}

func TestRetrospectivePeriod(t *testing.T) {
	usages := []domain.CertificateUsageRecord{usage("DOC-A", 10)}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"DayBeforeExpected", day("2026-03-08"), false},
		{"OnExpectedDate", day("2026-03-09"), true},
		{"MidPeriod", day("2026-03-15"), true},
		{"GraceDay", day("2026-03-21"), true},
		{"DayAfterGrace", day("2026-03-22"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinRetrospectivePeriod(usages, tt.now); got != tt.want {
				t.Errorf("withinRetrospectivePeriod(%s) = %v, want %v", tt.now.Format(domain.DateFormat), got, tt.want)
			}
		})
	}

	t.Run("NilExpectedDateSkipped", func(t *testing.T) {
		u := usage("DOC-A", 10)
		u.LandingDataExpectedDate = nil
		if withinRetrospectivePeriod([]domain.CertificateUsageRecord{u}, testNow) {
			t.Error("expected record without an expected date to be skipped")
		}
	})
}

func TestDeminimisRule(t *testing.T) {
	t.Run("SmallElogUsage", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 50)}
		if !isWithinDeminimis(domain.SourceElog, usages, false, testNow) {
			t.Error("expected 50kg elog mismatch to be within de-minimis")
		}
	})

	t.Run("JustOverLimit", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 50.01)}
		if isWithinDeminimis(domain.SourceElog, usages, false, testNow) {
			t.Error("expected 50.01kg usage to exceed de-minimis")
		}
	})

	t.Run("AnyQualifyingUsageSuffices", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 500), usage("DOC-B", 20)}
		if !isWithinDeminimis(domain.SourceElog, usages, false, testNow) {
			t.Error("expected one small usage to qualify the mismatch")
		}
	})

	t.Run("NonElogSourceNeverQualifies", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 10)}
		if isWithinDeminimis(domain.SourceDeclaration, usages, false, testNow) {
			t.Error("expected declaration source to be excluded")
		}
	})

	t.Run("DeclaredWeightNeverQualifies", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 10)}
		if isWithinDeminimis(domain.SourceElog, usages, true, testNow) {
			t.Error("expected declared species to be excluded")
		}
	})

	t.Run("OutsideWindowNeverQualifies", func(t *testing.T) {
		usages := []domain.CertificateUsageRecord{usage("DOC-A", 10)}
		if isWithinDeminimis(domain.SourceElog, usages, false, day("2026-04-01")) {
			t.Error("expected closed window to be excluded")
		}
	})
}
