package consolidate

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-fisheries/gannet/internal/bus"
	"github.com/opensource-fisheries/gannet/internal/cache"
	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/repository"
	"github.com/opensource-fisheries/gannet/internal/vessel"
)

// newTestEngine wires an engine against a temp SQLite file with the clock
// pinned to 2026-03-15.
func newTestEngine(t *testing.T) (domain.Repository, *refdata.Cache, *Engine) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gannet-engine-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ref := refdata.New(refdata.RepositoryLoaders(repo))
	resolver := vessel.NewResolver(ref)
	approvals := NewApprovalChecker(repo, cache.NewLRUCache(100), time.Minute)

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	engine := NewEngine(repo, ref, resolver, approvals, nil, b).
		WithClock(func() time.Time { return testNow })

	return repo, ref, engine
}

func seedVessel(t *testing.T, repo domain.Repository, ref *refdata.Cache) {
	t.Helper()
	ctx := context.Background()

	if err := repo.SaveVessel(ctx, domain.Vessel{
		RSSNumber:        "RSS-100",
		PLN:              "PH110",
		LicenceValidFrom: day("2026-01-01"),
		LicenceValidTo:   day("2026-12-31"),
	}); err != nil {
		t.Fatalf("SaveVessel failed: %v", err)
	}
	if err := repo.SaveWeighting(ctx, domain.Weighting{
		Vessel: 1.0, Species: 1.0, Exporter: 1.0, Threshold: 0.2,
	}); err != nil {
		t.Fatalf("SaveWeighting failed: %v", err)
	}
	if err := ref.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
}

func saveLanding(t *testing.T, repo domain.Repository, id string, source domain.LandingSource, items ...domain.LandingItem) {
	t.Helper()
	if err := repo.SaveLanding(context.Background(), &domain.Landing{
		ID:        id,
		RSSNumber: "RSS-100",
		LandedAt:  day("2026-03-10").Add(8 * time.Hour),
		Source:    source,
		Items:     items,
	}); err != nil {
		t.Fatalf("SaveLanding failed: %v", err)
	}
}

func saveCert(t *testing.T, repo domain.Repository, doc, species string, weight float64) {
	t.Helper()
	if err := repo.SaveCertificate(context.Background(), &domain.Certificate{
		DocumentNumber: doc,
		Status:         domain.CertStatusComplete,
		Products: []domain.Product{
			{
				Species: species,
				Catches: []domain.CatchRecord{
					{
						PLN:                     "PH110",
						Date:                    day("2026-03-10"),
						Weight:                  weight,
						DataEverExpected:        true,
						LandingDataExpectedDate: ptr(day("2026-03-09")),
						LandingDataEndDate:      ptr(day("2026-03-20")),
					},
				},
			},
		},
	}); err != nil {
		t.Fatalf("SaveCertificate failed: %v", err)
	}
}

func TestRunBatchOveruse(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 80)
	saveCert(t, repo, "DOC-B", "COD", 80)

	summary, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31"))
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.LandingsFetched != 1 || summary.Upserted != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	doc, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10"))
	if err != nil {
		t.Fatalf("FindConsolidatedLanding failed: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(doc.Items))
	}

	item := doc.Items[0]
	if item.Species != "COD" {
		t.Errorf("expected COD, got %s", item.Species)
	}
	if !item.IsOverusedAllCerts {
		t.Error("expected item to be overused")
	}
	if item.ExportWeight != 160 {
		t.Errorf("expected export weight 160, got %v", item.ExportWeight)
	}
	if item.LandedWeight != 100 {
		t.Errorf("expected landed weight 100, got %v", item.LandedWeight)
	}
	if len(item.Usages) != 2 {
		t.Errorf("expected 2 usages, got %d", len(item.Usages))
	}
}

func TestRunBatchWithinTolerance(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 70)
	saveCert(t, repo, "DOC-B", "COD", 70)

	summary, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31"))
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Deleted != 1 {
		t.Errorf("expected 1 delete, got %+v", summary)
	}

	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected no document, got err=%v", err)
	}
}

func TestRunBatchElogMismatch(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	// Elog landing declares haddock; the certificate uses cod, 30kg.
	saveLanding(t, repo, "landing-001", domain.SourceElog, domain.LandingItem{Species: "HAD", Weight: 200})
	saveCert(t, repo, "DOC-A", "COD", 30)

	summary, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31"))
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Upserted != 1 {
		t.Fatalf("expected 1 upsert, got %+v", summary)
	}

	doc, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10"))
	if err != nil {
		t.Fatalf("FindConsolidatedLanding failed: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(doc.Items))
	}

	item := doc.Items[0]
	if item.Species != "COD" {
		t.Errorf("expected mismatch item COD, got %s", item.Species)
	}
	if !item.IsWithinDeminimus {
		t.Error("expected mismatch to be within de-minimis")
	}
	if item.IsOverusedAllCerts {
		t.Error("expected mismatch item not to be overused")
	}
	if item.ExportWeight != 30 {
		t.Errorf("expected export weight 30, got %v", item.ExportWeight)
	}
}

func TestRunBatchAliasIsNotMismatch(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	if err := repo.SaveSpeciesAlias(ctx, domain.SpeciesAlias{Code: "COD", Aliases: []string{"CODF"}}); err != nil {
		t.Fatalf("SaveSpeciesAlias failed: %v", err)
	}
	if err := ref.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Certificate uses the alias code; small weight would qualify for
	// de-minimis if it were a true mismatch.
	saveLanding(t, repo, "landing-001", domain.SourceElog, domain.LandingItem{Species: "COD", Weight: 200})
	saveCert(t, repo, "DOC-A", "CODF", 30)

	if _, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31")); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	// One in-tolerance usage against the declared species: nothing qualifies.
	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected no document, got err=%v", err)
	}
}

func TestRunBatchUnresolvedVesselSkipped(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	if err := repo.SaveLanding(ctx, &domain.Landing{
		ID:        "landing-x",
		RSSNumber: "RSS-999",
		LandedAt:  day("2026-03-10"),
		Source:    domain.SourceDeclaration,
		Items:     []domain.LandingItem{{Species: "COD", Weight: 100}},
	}); err != nil {
		t.Fatalf("SaveLanding failed: %v", err)
	}

	summary, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31"))
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("expected 1 skip, got %+v", summary)
	}
}

func TestOnCertificateSubmitted(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 80)
	saveCert(t, repo, "DOC-B", "COD", 80)

	summary, err := engine.OnCertificateSubmitted(ctx, "DOC-B")
	if err != nil {
		t.Fatalf("OnCertificateSubmitted failed: %v", err)
	}
	if summary.Upserted != 1 {
		t.Errorf("expected 1 upsert, got %+v", summary)
	}

	t.Run("UnknownDocumentIsNoOp", func(t *testing.T) {
		summary, err := engine.OnCertificateSubmitted(ctx, "NO-SUCH-DOC")
		if err != nil {
			t.Fatalf("OnCertificateSubmitted failed: %v", err)
		}
		if summary.Upserted != 0 {
			t.Errorf("expected no writes, got %+v", summary)
		}
	})
}

func TestOnCertificateVoided(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 80)
	saveCert(t, repo, "DOC-B", "COD", 80)

	if _, err := engine.OnCertificateSubmitted(ctx, "DOC-A"); err != nil {
		t.Fatalf("OnCertificateSubmitted failed: %v", err)
	}
	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); err != nil {
		t.Fatalf("expected document before void: %v", err)
	}

	// Voiding one certificate leaves a single usage: no longer overused, so
	// the document goes away.
	if err := repo.UpdateCertificateStatus(ctx, "DOC-A", domain.CertStatusVoid); err != nil {
		t.Fatalf("UpdateCertificateStatus failed: %v", err)
	}
	if err := engine.OnCertificateVoided(ctx, "DOC-A"); err != nil {
		t.Fatalf("OnCertificateVoided failed: %v", err)
	}

	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected document removed, got err=%v", err)
	}

	t.Run("VoidIsIdempotent", func(t *testing.T) {
		if err := engine.OnCertificateVoided(ctx, "DOC-A"); err != nil {
			t.Errorf("second void failed: %v", err)
		}
	})
}

func TestGetRetrospectivelyAffected(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 80)
	saveCert(t, repo, "DOC-B", "COD", 80)

	if _, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31")); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	t.Run("InsidePeriod", func(t *testing.T) {
		keys, err := engine.GetRetrospectivelyAffected(ctx)
		if err != nil {
			t.Fatalf("GetRetrospectivelyAffected failed: %v", err)
		}
		if len(keys) != 1 {
			t.Fatalf("expected 1 key, got %d", len(keys))
		}
		if keys[0].RSSNumber != "RSS-100" || !domain.SameDay(keys[0].Date, day("2026-03-10")) {
			t.Errorf("unexpected key: %+v", keys[0])
		}
	})

	t.Run("AfterPeriodCloses", func(t *testing.T) {
		engine.WithClock(func() time.Time { return day("2026-04-01") })
		keys, err := engine.GetRetrospectivelyAffected(ctx)
		if err != nil {
			t.Fatalf("GetRetrospectivelyAffected failed: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("expected no keys after the period closed, got %d", len(keys))
		}
	})
}

func TestRunRetrospective(t *testing.T) {
	repo, ref, engine := newTestEngine(t)
	ctx := context.Background()

	seedVessel(t, repo, ref)
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 100})
	saveCert(t, repo, "DOC-A", "COD", 80)
	saveCert(t, repo, "DOC-B", "COD", 80)

	if _, err := engine.RunBatch(ctx, day("2026-03-01"), day("2026-03-31")); err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}

	// A corrected landing declaration arrives: the catch was much bigger, so
	// the retrospective run clears the overuse flag and drops the document.
	saveLanding(t, repo, "landing-001", domain.SourceDeclaration, domain.LandingItem{Species: "COD", Weight: 500})

	summary, err := engine.RunRetrospective(ctx)
	if err != nil {
		t.Fatalf("RunRetrospective failed: %v", err)
	}
	if summary.Deleted != 1 {
		t.Errorf("expected 1 delete, got %+v", summary)
	}

	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected document removed after correction, got err=%v", err)
	}
}
