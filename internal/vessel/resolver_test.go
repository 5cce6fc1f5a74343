package vessel

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(domain.DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func newResolver(t *testing.T, vessels []domain.Vessel) *Resolver {
	t.Helper()

	cache := refdata.New(refdata.Loaders{
		Vessels: func(ctx context.Context) ([]domain.Vessel, error) { return vessels, nil },
	})
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return NewResolver(cache)
}

func TestResolvePLN(t *testing.T) {
	// PH110 changed registry identity mid-year: two licence rows, same mark.
	resolver := newResolver(t, []domain.Vessel{
		{RSSNumber: "RSS-100", PLN: "PH110", LicenceValidFrom: day("2026-01-01"), LicenceValidTo: day("2026-06-30")},
		{RSSNumber: "RSS-200", PLN: "PH110", LicenceValidFrom: day("2026-07-01"), LicenceValidTo: day("2026-12-31")},
	})

	t.Run("InsideWindow", func(t *testing.T) {
		pln, ok := resolver.ResolvePLN("RSS-100", day("2026-03-15"))
		if !ok || pln != "PH110" {
			t.Errorf("ResolvePLN = %q, %v", pln, ok)
		}
	})

	t.Run("WindowBoundsInclusive", func(t *testing.T) {
		if _, ok := resolver.ResolvePLN("RSS-100", day("2026-01-01")); !ok {
			t.Error("expected validFrom day to resolve")
		}
		if _, ok := resolver.ResolvePLN("RSS-100", day("2026-06-30")); !ok {
			t.Error("expected validTo day to resolve")
		}
		if _, ok := resolver.ResolvePLN("RSS-100", day("2026-07-01")); ok {
			t.Error("expected day after validTo to miss")
		}
	})

	t.Run("TimeOfDayIgnored", func(t *testing.T) {
		if _, ok := resolver.ResolvePLN("RSS-100", day("2026-06-30").Add(23*time.Hour)); !ok {
			t.Error("expected validity comparison at day precision")
		}
	})

	t.Run("UnknownRSS", func(t *testing.T) {
		if _, ok := resolver.ResolvePLN("RSS-999", day("2026-03-15")); ok {
			t.Error("expected unknown RSS number to miss")
		}
	})
}

func TestResolveRSS(t *testing.T) {
	resolver := newResolver(t, []domain.Vessel{
		{RSSNumber: "RSS-100", PLN: "PH110", LicenceValidFrom: day("2026-01-01"), LicenceValidTo: day("2026-06-30")},
		{RSSNumber: "RSS-200", PLN: "PH110", LicenceValidFrom: day("2026-07-01"), LicenceValidTo: day("2026-12-31")},
		{RSSNumber: "RSS-300", PLN: "PH11", LicenceValidFrom: day("2026-01-01"), LicenceValidTo: day("2026-12-31")},
	})

	t.Run("PicksLicenceCoveringDate", func(t *testing.T) {
		rss, ok := resolver.ResolveRSS("PH110", day("2026-08-01"))
		if !ok || rss != "RSS-200" {
			t.Errorf("ResolveRSS = %q, %v", rss, ok)
		}

		rss, ok = resolver.ResolveRSS("PH110", day("2026-02-01"))
		if !ok || rss != "RSS-100" {
			t.Errorf("ResolveRSS = %q, %v", rss, ok)
		}
	})

	t.Run("ExactKeyNeverPrefix", func(t *testing.T) {
		// PH11 is a lexical prefix of PH110; the lookup must not confuse them.
		rss, ok := resolver.ResolveRSS("PH11", day("2026-02-01"))
		if !ok || rss != "RSS-300" {
			t.Errorf("ResolveRSS = %q, %v", rss, ok)
		}
	})

	t.Run("NoLicenceForDate", func(t *testing.T) {
		if _, ok := resolver.ResolveRSS("PH110", day("2027-01-15")); ok {
			t.Error("expected date outside every window to miss")
		}
	})
}
