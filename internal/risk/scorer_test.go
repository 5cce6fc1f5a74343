package risk

import (
	"context"
	"testing"

	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
)

func score(v float64) *float64 { return &v }

// newSnapshot builds a snapshot through the cache so tests exercise the same
// path production reads use.
func newSnapshot(t *testing.T, voi []domain.VesselOfInterest, weighting *domain.Weighting, factors []domain.ConversionFactor, behaviour []domain.ExporterBehaviour) *refdata.Snapshot {
	t.Helper()

	cache := refdata.New(refdata.Loaders{
		VesselsOfInterest: func(ctx context.Context) ([]domain.VesselOfInterest, error) { return voi, nil },
		Weighting:         func(ctx context.Context) (*domain.Weighting, error) { return weighting, nil },
		ConversionFactors: func(ctx context.Context) ([]domain.ConversionFactor, error) { return factors, nil },
		ExporterBehaviour: func(ctx context.Context) ([]domain.ExporterBehaviour, error) { return behaviour, nil },
	})
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return cache.Snapshot()
}

func TestVesselScore(t *testing.T) {
	snap := newSnapshot(t, []domain.VesselOfInterest{{PLN: "PH110"}}, nil, nil, nil)

	if got := VesselScore(snap, "PH110"); got != 1.0 {
		t.Errorf("expected 1.0 for vessel of interest, got %v", got)
	}
	if got := VesselScore(snap, "FY869"); got != 0.5 {
		t.Errorf("expected 0.5 default, got %v", got)
	}
}

func TestSpeciesScore(t *testing.T) {
	snap := newSnapshot(t, nil, nil, []domain.ConversionFactor{
		{Species: "COD", Factor: 1.17, RiskScore: score(0.9)},
		{Species: "HAD", Factor: 1.2}, // no risk score on the row
	}, nil)

	if got := SpeciesScore(snap, "COD"); got != 0.9 {
		t.Errorf("expected 0.9, got %v", got)
	}
	if got := SpeciesScore(snap, "HAD"); got != 0.5 {
		t.Errorf("expected 0.5 for row without score, got %v", got)
	}
	if got := SpeciesScore(snap, "NEP"); got != 0.5 {
		t.Errorf("expected 0.5 for missing row, got %v", got)
	}
}

func TestExporterScorePrecedence(t *testing.T) {
	snap := newSnapshot(t, nil, nil, nil, []domain.ExporterBehaviour{
		{AccountID: "acc-1", ContactID: "con-1", Score: 0.9},
		{ContactID: "con-1", Score: 0.7},
		{AccountID: "acc-1", Score: 0.6},
	})

	tests := []struct {
		name      string
		accountID string
		contactID string
		want      float64
	}{
		{"ExactPairWins", "acc-1", "con-1", 0.9},
		{"ContactOnlyBeatsAccountOnly", "acc-2", "con-1", 0.7},
		{"AccountOnlyFallback", "acc-1", "con-2", 0.6},
		{"NoMatchIsDefault", "acc-9", "con-9", 1.0},
		{"NoIdentifiersIsDefault", "", "", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExporterScore(snap, tt.accountID, tt.contactID); got != tt.want {
				t.Errorf("ExporterScore(%q, %q) = %v, want %v", tt.accountID, tt.contactID, got, tt.want)
			}
		})
	}
}

func TestScoreIsWeightedProduct(t *testing.T) {
	snap := newSnapshot(t,
		[]domain.VesselOfInterest{{PLN: "PH110"}},
		&domain.Weighting{Vessel: 0.5, Species: 2.0, Exporter: 1.0, Threshold: 0.4},
		[]domain.ConversionFactor{{Species: "COD", Factor: 1.17, RiskScore: score(0.8)}},
		nil,
	)

	// (1.0 * 0.5) * (0.8 * 2.0) * (1.0 * 1.0) = 0.8
	got := Score(snap, "PH110", "COD", "", "")
	if got != 0.8 {
		t.Errorf("expected 0.8, got %v", got)
	}
}

func TestIsHighRiskStrictThreshold(t *testing.T) {
	snap := newSnapshot(t, nil, &domain.Weighting{Threshold: 0.25}, nil, nil)

	if IsHighRisk(snap, 0.25) {
		t.Error("score equal to threshold must be low risk")
	}
	if !IsHighRisk(snap, 0.250001) {
		t.Error("score above threshold must be high risk")
	}
}

func TestScoreUsageDefaults(t *testing.T) {
	// Unit weighting, no reference rows: 0.5 * 0.5 * 1.0 = 0.25.
	snap := newSnapshot(t, nil, &domain.Weighting{Vessel: 1, Species: 1, Exporter: 1, Threshold: 0.2}, nil, nil)

	total, high := ScoreUsage(snap, "FY869", "COD", "", "")
	if total != 0.25 {
		t.Errorf("expected 0.25, got %v", total)
	}
	if !high {
		t.Error("expected 0.25 against threshold 0.2 to be high risk")
	}
}
