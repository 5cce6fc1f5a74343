package consolidate

import (
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

const (
	// toleranceBaseKg is the flat overuse tolerance in kilograms.
	toleranceBaseKg = 50.0

	// estimateTolerancePct widens the tolerance for estimated landed
	// weights (non-declaration sources).
	estimateTolerancePct = 0.10

	// deminimisLimitKg is the largest single usage weight that can qualify
	// for the species-mismatch allowance.
	deminimisLimitKg = 50.0

	// retrospectiveGraceDays extends the retrospective window one day past
	// the landing data end date.
	retrospectiveGraceDays = 1
)

// insideRetrospectiveWindow reports whether a usage record is currently
// eligible for overuse/de-minimis evaluation: landing data must still be
// expected and the current date must be on or before the end date plus one
// day, compared at day precision.
func insideRetrospectiveWindow(u domain.CertificateUsageRecord, now time.Time) bool {
	if !u.DataEverExpected || u.LandingDataEndDate == nil {
		return false
	}
	deadline := domain.DayOf(*u.LandingDataEndDate).AddDate(0, 0, retrospectiveGraceDays)
	return !domain.DayOf(now).After(deadline)
}

// withinRetrospectivePeriod reports whether a landing group as a whole is in
// its retrospective period: at least one record must have an expected date
// set with the current date inside [expected, end + 1 day], inclusive by day.
func withinRetrospectivePeriod(usages []domain.CertificateUsageRecord, now time.Time) bool {
	day := domain.DayOf(now)
	for _, u := range usages {
		if !u.DataEverExpected || u.LandingDataExpectedDate == nil || u.LandingDataEndDate == nil {
			continue
		}
		from := domain.DayOf(*u.LandingDataExpectedDate)
		to := domain.DayOf(*u.LandingDataEndDate).AddDate(0, 0, retrospectiveGraceDays)
		if !day.Before(from) && !day.After(to) {
			return true
		}
	}
	return false
}

// isOverusedAllCerts applies the overuse rule to one item's usage list.
//
// Overuse requires all of:
//   - at least two usage records;
//   - at least one record flagged high-risk and inside its retrospective
//     window, and the group inside its retrospective period;
//   - not every record pre-approved, and at least two distinct certificates
//     among the non-pre-approved records;
//   - a positive landed weight;
//   - total usage weight (pre-approved included) exceeding landed weight
//     plus tolerance. Tolerance is 50 kg, plus 10% of landed weight when the
//     item is an estimate.
func isOverusedAllCerts(landedWeight float64, isEstimate bool, usages []domain.CertificateUsageRecord, now time.Time) bool {
	if len(usages) < 2 {
		return false
	}

	highRiskInWindow := false
	for _, u := range usages {
		if u.IsHighRisk && insideRetrospectiveWindow(u, now) {
			highRiskInWindow = true
			break
		}
	}
	if !highRiskInWindow {
		return false
	}
	if !withinRetrospectivePeriod(usages, now) {
		return false
	}

	docs := make(map[string]struct{})
	allPreApproved := true
	for _, u := range usages {
		if !u.PreApproved {
			allPreApproved = false
			docs[u.DocumentNumber] = struct{}{}
		}
	}
	if allPreApproved || len(docs) <= 1 {
		return false
	}

	if landedWeight <= 0 {
		return false
	}

	tolerance := toleranceBaseKg
	if isEstimate {
		tolerance += estimateTolerancePct * landedWeight
	}
	return sumUsageWeights(usages) > landedWeight+tolerance
}

// isWithinDeminimis applies the de-minimis rule to a candidate usage list
// for a species with no declared landed weight. hasLandedWeight is true when
// an aggregated landed weight for the species already exists, meaning there
// is no true mismatch.
func isWithinDeminimis(source domain.LandingSource, usages []domain.CertificateUsageRecord, hasLandedWeight bool, now time.Time) bool {
	if source != domain.SourceElog || hasLandedWeight {
		return false
	}
	for _, u := range usages {
		if u.Weight <= deminimisLimitKg && insideRetrospectiveWindow(u, now) {
			return true
		}
	}
	return false
}

func sumUsageWeights(usages []domain.CertificateUsageRecord) float64 {
	var total float64
	for _, u := range usages {
		total += u.Weight
	}
	return total
}
