package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-fisheries/gannet/internal/bus"
	"github.com/opensource-fisheries/gannet/internal/cache"
	"github.com/opensource-fisheries/gannet/internal/consolidate"
	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/repository"
	"github.com/opensource-fisheries/gannet/internal/vessel"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation(domain.DateFormat, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

// newTestStack wires a repository, reference data, engine, bus, and worker
// against a temp SQLite file.
func newTestStack(t *testing.T) (domain.Repository, *refdata.Cache, *consolidate.Engine, domain.EventBus) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "gannet-worker-test-*.db")
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
	approvals := consolidate.NewApprovalChecker(repo, cache.NewLRUCache(100), time.Minute)

	b := bus.NewChannelBus(10)
	t.Cleanup(func() { b.Close() })

	engine := consolidate.NewEngine(repo, ref, resolver, approvals, nil, b).
		WithClock(func() time.Time { return day("2026-03-15") })

	return repo, ref, engine, b
}

func seedFixtures(t *testing.T, repo domain.Repository) {
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

	if err := repo.SaveLanding(ctx, &domain.Landing{
		ID:        "landing-001",
		RSSNumber: "RSS-100",
		LandedAt:  day("2026-03-10").Add(8 * time.Hour),
		Source:    domain.SourceDeclaration,
		Items:     []domain.LandingItem{{Species: "COD", Weight: 100.0}},
	}); err != nil {
		t.Fatalf("SaveLanding failed: %v", err)
	}

	for _, doc := range []string{"DOC-A", "DOC-B"} {
		if err := repo.SaveCertificate(ctx, &domain.Certificate{
			DocumentNumber: doc,
			Status:         domain.CertStatusComplete,
			Products: []domain.Product{
				{
					Species: "COD",
					Catches: []domain.CatchRecord{
						{
							PLN:                     "PH110",
							Date:                    day("2026-03-10"),
							Weight:                  80.0,
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
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerCertificateSubmitted(t *testing.T) {
	repo, ref, engine, b := newTestStack(t)
	seedFixtures(t, repo)

	ctx := context.Background()
	if err := ref.Refresh(ctx); err != nil {
		t.Fatalf("refdata refresh failed: %v", err)
	}

	w := NewWorker(b, engine)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}

	payload, _ := json.Marshal(CertificateMessage{DocumentNumber: "DOC-A"})
	if err := b.Publish(ctx, domain.TopicCertificateSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10"))
		return err == nil
	})

	doc, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10"))
	if err != nil {
		t.Fatalf("FindConsolidatedLanding failed: %v", err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(doc.Items))
	}
	item := doc.Items[0]
	if !item.IsOverusedAllCerts {
		t.Error("expected COD item to be overused (160kg exported against 100kg landed)")
	}
	if item.ExportWeight != 160.0 {
		t.Errorf("expected export weight 160, got %.1f", item.ExportWeight)
	}
	if len(item.Usages) != 2 {
		t.Errorf("expected 2 usages, got %d", len(item.Usages))
	}
}

func TestWorkerCertificateVoided(t *testing.T) {
	repo, ref, engine, b := newTestStack(t)
	seedFixtures(t, repo)

	ctx := context.Background()
	if err := ref.Refresh(ctx); err != nil {
		t.Fatalf("refdata refresh failed: %v", err)
	}

	// Consolidate directly first so there is a document to unwind.
	if _, err := engine.OnCertificateSubmitted(ctx, "DOC-A"); err != nil {
		t.Fatalf("OnCertificateSubmitted failed: %v", err)
	}
	if _, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10")); err != nil {
		t.Fatalf("expected consolidated landing before void: %v", err)
	}

	w := NewWorker(b, engine)
	if err := w.Start(); err != nil {
		t.Fatalf("worker start failed: %v", err)
	}
	defer w.Stop()

	if err := repo.UpdateCertificateStatus(ctx, "DOC-A", domain.CertStatusVoid); err != nil {
		t.Fatalf("UpdateCertificateStatus failed: %v", err)
	}

	payload, _ := json.Marshal(CertificateMessage{DocumentNumber: "DOC-A"})
	if err := b.Publish(ctx, domain.TopicCertificateVoided, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// With DOC-A gone a single 80kg usage remains; the item no longer
	// qualifies and the document must be removed.
	waitFor(t, 2*time.Second, func() bool {
		_, err := repo.FindConsolidatedLanding(ctx, "PH110", day("2026-03-10"))
		return errors.Is(err, repository.ErrNotFound)
	})
}
