// Package consolidate implements the consolidation and overuse/risk engine:
// it matches aggregated landings against every certificate referencing the
// same vessel and day, applies the overuse and de-minimis rules, and
// maintains the persisted consolidated view.
package consolidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/rules"
	"github.com/opensource-fisheries/gannet/internal/transform"
	"github.com/opensource-fisheries/gannet/internal/vessel"
)

// Engine orchestrates consolidation. One instance serves batch runs and the
// incremental certificate handlers. Runs are sequential within an
// invocation; there is no cross-run mutual exclusion on a (vessel, day) key,
// so concurrent runs touching the same key can race on the persisted
// document. Callers that run batches concurrently must partition keys.
type Engine struct {
	repo      domain.Repository
	refdata   *refdata.Cache
	resolver  *vessel.Resolver
	approvals *ApprovalChecker
	alerts    *rules.Engine
	bus       domain.EventBus
	now       func() time.Time
}

// NewEngine creates a consolidation engine. alerts and bus may be nil; the
// engine then skips alert-rule evaluation and event publishing.
func NewEngine(repo domain.Repository, ref *refdata.Cache, resolver *vessel.Resolver, approvals *ApprovalChecker, alerts *rules.Engine, bus domain.EventBus) *Engine {
	return &Engine{
		repo:      repo,
		refdata:   ref,
		resolver:  resolver,
		approvals: approvals,
		alerts:    alerts,
		bus:       bus,
		now:       time.Now,
	}
}

// WithClock overrides the engine's time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// BatchSummary reports what a consolidation pass did.
type BatchSummary struct {
	LandingsFetched int `json:"landingsFetched"`
	Aggregated      int `json:"aggregated"`
	Upserted        int `json:"upserted"`
	Deleted         int `json:"deleted"`
	Skipped         int `json:"skipped"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUpserted
	outcomeDeleted
)

// RunBatch consolidates all landings in [start, end]. The risking tables are
// refreshed first; a refresh failure is logged and the batch proceeds with
// the previous snapshot.
func (e *Engine) RunBatch(ctx context.Context, start, end time.Time) (BatchSummary, error) {
	if err := e.refdata.RefreshRisking(ctx); err != nil {
		slog.Error("risking refresh failed, continuing with previous snapshot", "error", err)
	}

	landings, err := e.repo.FetchLandings(ctx, start, end)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to fetch landings: %w", err)
	}

	summary, err := e.Consolidate(ctx, transform.Aggregate(landings))
	summary.LandingsFetched = len(landings)
	return summary, err
}

// Consolidate runs the per-landing consolidation over already-aggregated
// landings. A persistence failure on one document is collected and does not
// abort the remaining documents.
func (e *Engine) Consolidate(ctx context.Context, aggs []domain.AggregatedLanding) (BatchSummary, error) {
	summary := BatchSummary{Aggregated: len(aggs)}
	var errs []error

	for i := range aggs {
		result, err := e.consolidateOne(ctx, &aggs[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch result {
		case outcomeUpserted:
			summary.Upserted++
		case outcomeDeleted:
			summary.Deleted++
		case outcomeSkipped:
			summary.Skipped++
		}
	}

	return summary, errors.Join(errs...)
}

func (e *Engine) consolidateOne(ctx context.Context, agg *domain.AggregatedLanding) (outcome, error) {
	pln, ok := e.resolver.ResolvePLN(agg.RSSNumber, agg.Date)
	if !ok {
		slog.Warn("no vessel mark for rss number, skipping landing",
			"rss_number", agg.RSSNumber,
			"date", agg.Date.Format(domain.DateFormat),
		)
		return outcomeSkipped, nil
	}

	certs, err := e.repo.FetchCertificatesReferencing(ctx, pln, agg.Date)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch certificates for %s on %s: %w", pln, agg.Date.Format(domain.DateFormat), err)
	}

	snap := e.refdata.Snapshot()
	index := e.buildUsageIndex(ctx, snap, pln, agg.Date, certs)
	now := e.now()

	doc := &domain.ConsolidatedLanding{
		PLN:       pln,
		RSSNumber: agg.RSSNumber,
		Date:      domain.DayOf(agg.Date),
		Source:    agg.Source,
	}

	// Declared species: attach usages (by code or alias) and keep the item
	// only when the overuse rule holds.
	for _, sp := range agg.Species {
		usages, _, _ := index.match(snap, sp.Species)
		item := domain.ConsolidatedLandingItem{
			Species:      sp.Species,
			LandedWeight: sp.LandedWeight,
			IsEstimate:   sp.IsEstimate,
			ExportWeight: sumUsageWeights(usages),
			Usages:       usages,
		}
		item.IsOverusedAllCerts = isOverusedAllCerts(item.LandedWeight, item.IsEstimate, usages, now)
		if item.IsOverusedAllCerts {
			doc.Items = append(doc.Items, item)
		}
	}

	// Species mismatches: only elog landings get the de-minimis allowance.
	if agg.Source == domain.SourceElog {
		for code, usages := range index {
			if matchesDeclared(snap, agg.Species, code) {
				continue
			}
			if !isWithinDeminimis(agg.Source, usages, false, now) {
				continue
			}
			merged := false
			for i := range doc.Items {
				if snap.SpeciesMatch(doc.Items[i].Species, code) {
					doc.Items[i].Usages = append(doc.Items[i].Usages, usages...)
					doc.Items[i].ExportWeight = sumUsageWeights(doc.Items[i].Usages)
					doc.Items[i].IsWithinDeminimus = true
					merged = true
					break
				}
			}
			if !merged {
				doc.Items = append(doc.Items, domain.ConsolidatedLandingItem{
					Species:           code,
					ExportWeight:      sumUsageWeights(usages),
					Usages:            usages,
					IsWithinDeminimus: true,
				})
			}
		}
	}

	return e.persist(ctx, doc)
}

// persist upserts a document with qualifying items and deletes one without.
// The delete-if-empty decision happens only here, at document level.
func (e *Engine) persist(ctx context.Context, doc *domain.ConsolidatedLanding) (outcome, error) {
	if !doc.HasQualifyingItems() {
		if err := e.repo.DeleteConsolidatedLanding(ctx, doc.PLN, doc.Date); err != nil {
			return 0, fmt.Errorf("failed to delete consolidated landing %s/%s: %w", doc.PLN, doc.Date.Format(domain.DateFormat), err)
		}
		return outcomeDeleted, nil
	}

	doc.UpdatedAt = e.now().UTC()
	if err := e.repo.UpsertConsolidatedLanding(ctx, doc); err != nil {
		return 0, fmt.Errorf("failed to upsert consolidated landing %s/%s: %w", doc.PLN, doc.Date.Format(domain.DateFormat), err)
	}

	e.publishConsolidated(ctx, doc)
	e.evaluateAlerts(ctx, doc)
	return outcomeUpserted, nil
}

// OnCertificateSubmitted replays consolidation for every (vessel, day) key
// the certificate's catch list touches. A missing or incomplete certificate
// is a resolution miss, not an error.
func (e *Engine) OnCertificateSubmitted(ctx context.Context, documentNumber string) (BatchSummary, error) {
	cert, err := e.repo.FetchCertificateByNumberAndStatus(ctx, documentNumber, domain.CertStatusComplete)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Warn("no complete certificate for document, skipping", "document_number", documentNumber)
		return BatchSummary{}, nil
	}
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to fetch certificate %s: %w", documentNumber, err)
	}

	keys := e.affectedKeys(cert)
	if len(keys) == 0 {
		slog.Warn("certificate references no resolvable landings", "document_number", documentNumber)
		return BatchSummary{}, nil
	}

	landings, err := e.repo.FetchLandingsByKeys(ctx, keys)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to fetch landings for certificate %s: %w", documentNumber, err)
	}

	if err := e.refdata.RefreshRisking(ctx); err != nil {
		slog.Error("risking refresh failed, continuing with previous snapshot", "error", err)
	}

	summary, err := e.Consolidate(ctx, transform.Aggregate(landings))
	summary.LandingsFetched = len(landings)
	return summary, err
}

// affectedKeys extracts the de-duplicated (RSS number, day) pairs referenced
// by a certificate's catch records. Marks that do not resolve are skipped.
func (e *Engine) affectedKeys(cert *domain.Certificate) []domain.LandingKey {
	seen := make(map[domain.LandingKey]struct{})
	var keys []domain.LandingKey

	for _, product := range cert.Products {
		for _, catch := range product.Catches {
			rss, ok := e.resolver.ResolveRSS(catch.PLN, catch.Date)
			if !ok {
				slog.Warn("no rss number for vessel mark, skipping catch",
					"pln", catch.PLN,
					"date", catch.Date.Format(domain.DateFormat),
				)
				continue
			}
			key := domain.LandingKey{RSSNumber: rss, Date: domain.DayOf(catch.Date)}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}

	return keys
}

// OnCertificateVoided removes the voided document's usages from every
// consolidated item referencing it, re-evaluates the rules, and re-persists.
// Voiding the same document twice is a no-op the second time.
func (e *Engine) OnCertificateVoided(ctx context.Context, documentNumber string) error {
	docs, err := e.repo.FindConsolidatedLandingsByDocument(ctx, documentNumber)
	if err != nil {
		return fmt.Errorf("failed to find consolidated landings for document %s: %w", documentNumber, err)
	}

	now := e.now()
	var errs []error

	for _, doc := range docs {
		for i := range doc.Items {
			item := &doc.Items[i]

			kept := make([]domain.CertificateUsageRecord, 0, len(item.Usages))
			for _, u := range item.Usages {
				if u.DocumentNumber != documentNumber {
					kept = append(kept, u)
				}
			}

			item.Usages = kept
			item.ExportWeight = sumUsageWeights(kept)
			item.IsOverusedAllCerts = isOverusedAllCerts(item.LandedWeight, item.IsEstimate, kept, now)
			if item.IsWithinDeminimus {
				item.IsWithinDeminimus = anyWeightAtMost(kept, deminimisLimitKg)
			}
		}

		if _, err := e.persist(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// RefreshReferenceData re-runs every reference-data loader.
func (e *Engine) RefreshReferenceData(ctx context.Context) error {
	return e.refdata.Refresh(ctx)
}

// GetRetrospectivelyAffected returns the (RSS number, day) keys of
// consolidated landings with a qualifying item whose contributing usages are
// still inside the retrospective period.
func (e *Engine) GetRetrospectivelyAffected(ctx context.Context) ([]domain.LandingKey, error) {
	docs, err := e.repo.ListConsolidatedLandings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list consolidated landings: %w", err)
	}

	now := e.now()
	var keys []domain.LandingKey

	for _, doc := range docs {
		for i := range doc.Items {
			item := &doc.Items[i]
			if item.Qualifies() && withinRetrospectivePeriod(item.Usages, now) {
				keys = append(keys, domain.LandingKey{RSSNumber: doc.RSSNumber, Date: doc.Date})
				break
			}
		}
	}

	return keys, nil
}

// RunRetrospective re-consolidates every landing group still inside its
// retrospective period, picking up landing data that arrived after the
// certificates referencing it.
func (e *Engine) RunRetrospective(ctx context.Context) (BatchSummary, error) {
	keys, err := e.GetRetrospectivelyAffected(ctx)
	if err != nil {
		return BatchSummary{}, err
	}
	if len(keys) == 0 {
		return BatchSummary{}, nil
	}

	landings, err := e.repo.FetchLandingsByKeys(ctx, keys)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to fetch landings: %w", err)
	}

	summary, err := e.Consolidate(ctx, transform.Aggregate(landings))
	summary.LandingsFetched = len(landings)
	return summary, err
}

func (e *Engine) publishConsolidated(ctx context.Context, doc *domain.ConsolidatedLanding) {
	if e.bus == nil {
		return
	}

	payload, _ := json.Marshal(doc)
	if err := e.bus.Publish(ctx, domain.TopicLandingConsolidated, payload); err != nil {
		slog.Error("failed to publish consolidated landing",
			"pln", doc.PLN,
			"date", doc.Date.Format(domain.DateFormat),
			"error", err,
		)
	}

	for i := range doc.Items {
		if !doc.Items[i].IsOverusedAllCerts {
			continue
		}
		alert, _ := json.Marshal(map[string]any{
			"pln":          doc.PLN,
			"date":         doc.Date.Format(domain.DateFormat),
			"species":      doc.Items[i].Species,
			"landedWeight": doc.Items[i].LandedWeight,
			"exportWeight": doc.Items[i].ExportWeight,
		})
		if err := e.bus.Publish(ctx, domain.TopicOveruseAlert, alert); err != nil {
			slog.Error("failed to publish overuse alert",
				"pln", doc.PLN,
				"species", doc.Items[i].Species,
				"error", err,
			)
		}
	}
}

// evaluateAlerts runs the configured alert rules over each persisted item
// and publishes failing outcomes to the alert topic.
func (e *Engine) evaluateAlerts(ctx context.Context, doc *domain.ConsolidatedLanding) {
	if e.alerts == nil || e.alerts.RulesCount() == 0 {
		return
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		results, err := e.alerts.EvaluateAll(ctx, &rules.ItemInput{
			PLN:             doc.PLN,
			Species:         item.Species,
			Source:          string(doc.Source),
			LandedWeight:    item.LandedWeight,
			ExportWeight:    item.ExportWeight,
			UsageCount:      len(item.Usages),
			Overused:        item.IsOverusedAllCerts,
			WithinDeminimis: item.IsWithinDeminimus,
			IsEstimate:      item.IsEstimate,
		})
		if err != nil {
			slog.Error("alert rule evaluation failed", "pln", doc.PLN, "species", item.Species, "error", err)
			continue
		}

		for _, r := range results {
			if r.SubRuleRef != domain.RuleOutcomeFail {
				continue
			}
			slog.Warn("alert rule triggered",
				"rule_id", r.RuleID,
				"pln", doc.PLN,
				"species", item.Species,
				"reason", r.Reason,
			)
			if e.bus == nil {
				continue
			}
			payload, _ := json.Marshal(r)
			if err := e.bus.Publish(ctx, domain.TopicOveruseAlert, payload); err != nil {
				slog.Error("failed to publish rule alert", "rule_id", r.RuleID, "error", err)
			}
		}
	}
}

func matchesDeclared(snap *refdata.Snapshot, declared []domain.AggregatedSpecies, code string) bool {
	for _, sp := range declared {
		if snap.SpeciesMatch(sp.Species, code) {
			return true
		}
	}
	return false
}

func anyWeightAtMost(usages []domain.CertificateUsageRecord, limit float64) bool {
	for _, u := range usages {
		if u.Weight <= limit {
			return true
		}
	}
	return false
}
