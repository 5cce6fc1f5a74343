package refdata

import (
	"context"
	"errors"
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

// fakeLoaders serves in-memory tables and counts invocations.
type fakeLoaders struct {
	vessels   []domain.Vessel
	voi       []domain.VesselOfInterest
	weighting *domain.Weighting
	aliases   []domain.SpeciesAlias
	factors   []domain.ConversionFactor
	behaviour []domain.ExporterBehaviour

	vesselCalls int
	voiCalls    int
	failVessels bool
}

func (f *fakeLoaders) loaders() Loaders {
	return Loaders{
		Vessels: func(ctx context.Context) ([]domain.Vessel, error) {
			f.vesselCalls++
			if f.failVessels {
				return nil, errors.New("roster unavailable")
			}
			return f.vessels, nil
		},
		VesselsOfInterest: func(ctx context.Context) ([]domain.VesselOfInterest, error) {
			f.voiCalls++
			return f.voi, nil
		},
		Weighting: func(ctx context.Context) (*domain.Weighting, error) {
			return f.weighting, nil
		},
		SpeciesAliases: func(ctx context.Context) ([]domain.SpeciesAlias, error) {
			return f.aliases, nil
		},
		ConversionFactors: func(ctx context.Context) ([]domain.ConversionFactor, error) {
			return f.factors, nil
		},
		ExporterBehaviour: func(ctx context.Context) ([]domain.ExporterBehaviour, error) {
			return f.behaviour, nil
		},
	}
}

func testVessel() domain.Vessel {
	return domain.Vessel{
		RSSNumber:        "RSS-100",
		PLN:              "PH110",
		LicenceValidFrom: day("2026-01-01"),
		LicenceValidTo:   day("2026-12-31"),
	}
}

func TestCacheRefresh(t *testing.T) {
	ctx := context.Background()
	src := &fakeLoaders{
		vessels:   []domain.Vessel{testVessel()},
		voi:       []domain.VesselOfInterest{{PLN: "PH110"}},
		weighting: &domain.Weighting{Vessel: 1, Species: 1, Exporter: 1, Threshold: 0.5},
	}
	cache := New(src.loaders())

	t.Run("EmptyBeforeFirstRefresh", func(t *testing.T) {
		snap := cache.Snapshot()
		if got := snap.LicencesForRSS("RSS-100"); len(got) != 0 {
			t.Errorf("expected empty roster, got %d rows", len(got))
		}
		if snap.Weighting() != (domain.Weighting{}) {
			t.Errorf("expected zero weighting, got %+v", snap.Weighting())
		}
	})

	t.Run("RefreshPopulates", func(t *testing.T) {
		if err := cache.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}

		snap := cache.Snapshot()
		if got := snap.LicencesForRSS("RSS-100"); len(got) != 1 || got[0].PLN != "PH110" {
			t.Errorf("unexpected roster rows: %+v", got)
		}
		if !snap.IsVesselOfInterest("PH110") {
			t.Error("expected PH110 on the vessel-of-interest list")
		}
		if snap.Weighting().Threshold != 0.5 {
			t.Errorf("expected threshold 0.5, got %v", snap.Weighting().Threshold)
		}
	})

	t.Run("FailedRefreshKeepsPrevious", func(t *testing.T) {
		src.failVessels = true
		if err := cache.Refresh(ctx); err == nil {
			t.Fatal("expected refresh error")
		}
		src.failVessels = false

		if got := cache.Snapshot().LicencesForRSS("RSS-100"); len(got) != 1 {
			t.Errorf("expected previous snapshot to survive, got %d rows", len(got))
		}
	})

	t.Run("ReadersKeepTheirSnapshot", func(t *testing.T) {
		held := cache.Snapshot()
		src.vessels = nil
		if err := cache.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}

		if got := held.LicencesForRSS("RSS-100"); len(got) != 1 {
			t.Error("held snapshot changed under the reader")
		}
		if got := cache.Snapshot().LicencesForRSS("RSS-100"); len(got) != 0 {
			t.Error("new snapshot still has the removed vessel")
		}
	})
}

func TestCacheRefreshRisking(t *testing.T) {
	ctx := context.Background()
	src := &fakeLoaders{
		vessels:   []domain.Vessel{testVessel()},
		weighting: &domain.Weighting{Vessel: 1, Species: 1, Exporter: 1, Threshold: 0.5},
	}
	cache := New(src.loaders())
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	fullVesselCalls := src.vesselCalls

	// Change the risking tables and run a risking-only refresh.
	src.voi = []domain.VesselOfInterest{{PLN: "PH110"}}
	src.weighting = &domain.Weighting{Vessel: 1, Species: 1, Exporter: 1, Threshold: 0.1}

	if err := cache.RefreshRisking(ctx); err != nil {
		t.Fatalf("RefreshRisking failed: %v", err)
	}

	snap := cache.Snapshot()
	if !snap.IsVesselOfInterest("PH110") {
		t.Error("expected risking refresh to pick up the VOI row")
	}
	if snap.Weighting().Threshold != 0.1 {
		t.Errorf("expected threshold 0.1, got %v", snap.Weighting().Threshold)
	}
	if src.vesselCalls != fullVesselCalls {
		t.Errorf("risking refresh re-ran the vessel loader (%d calls)", src.vesselCalls)
	}
	if got := snap.LicencesForRSS("RSS-100"); len(got) != 1 {
		t.Error("risking refresh dropped the retained roster")
	}
}

func TestCachePurge(t *testing.T) {
	ctx := context.Background()
	src := &fakeLoaders{vessels: []domain.Vessel{testVessel()}}
	cache := New(src.loaders())
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	cache.Purge()

	if got := cache.Snapshot().LicencesForRSS("RSS-100"); len(got) != 0 {
		t.Errorf("expected empty snapshot after purge, got %d rows", len(got))
	}

	// A refresh after purge repopulates.
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if got := cache.Snapshot().LicencesForRSS("RSS-100"); len(got) != 1 {
		t.Error("expected refresh after purge to repopulate")
	}
}

func TestSpeciesMatch(t *testing.T) {
	snap := buildSnapshot(nil, nil, nil, []domain.SpeciesAlias{
		{Code: "COD", Aliases: []string{"CODF"}},
	}, nil, nil)

	tests := []struct {
		a, b string
		want bool
	}{
		{"COD", "COD", true},
		{"COD", "CODF", true},
		{"CODF", "COD", true}, // reverse direction reads symmetrically
		{"COD", "HAD", false},
		{"CODF", "CODF", true},
	}

	for _, tt := range tests {
		if got := snap.SpeciesMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("SpeciesMatch(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAliasReplaceOnLoad(t *testing.T) {
	// Later rows for the same code replace earlier ones.
	snap := buildSnapshot(nil, nil, nil, []domain.SpeciesAlias{
		{Code: "COD", Aliases: []string{"CODF"}},
		{Code: "COD", Aliases: []string{"BACALAO"}},
	}, nil, nil)

	if snap.SpeciesMatch("COD", "CODF") {
		t.Error("expected replaced alias to be gone")
	}
	if !snap.SpeciesMatch("COD", "BACALAO") {
		t.Error("expected replacement alias to match")
	}
}
