package consolidate

import (
	"context"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
	"github.com/opensource-fisheries/gannet/internal/risk"
)

// usageIndex maps species code to the usage records filed for that species
// across all certificates referencing one (vessel, day) key.
type usageIndex map[string][]domain.CertificateUsageRecord

// buildUsageIndex extracts usage records from all certificates referencing
// the given vessel mark and day. Only complete or statusless certificates
// contribute. Catch weights are scaled by the product conversion factor
// (1 when unset); the high-risk flag is computed from the vessel mark, the
// product species, and the certificate's exporter identifiers.
func (e *Engine) buildUsageIndex(ctx context.Context, snap *refdata.Snapshot, pln string, date time.Time, certs []*domain.Certificate) usageIndex {
	index := make(usageIndex)

	for _, cert := range certs {
		if cert.Status != domain.CertStatusComplete && cert.Status != "" {
			continue
		}

		preApproved := e.approvals.IsPreApproved(ctx, cert.DocumentNumber)

		for _, product := range cert.Products {
			factor := product.ConversionFactor
			if factor == 0 {
				factor = 1
			}

			for _, catch := range product.Catches {
				if catch.PLN != pln || !domain.SameDay(catch.Date, date) {
					continue
				}

				_, highRisk := risk.ScoreUsage(snap, pln, product.Species, cert.ExporterAccountID, cert.ExporterContactID)

				index[product.Species] = append(index[product.Species], domain.CertificateUsageRecord{
					LandingID:               catch.LandingID,
					DocumentNumber:          cert.DocumentNumber,
					Weight:                  catch.Weight * factor,
					DataEverExpected:        catch.DataEverExpected,
					LandingDataExpectedDate: catch.LandingDataExpectedDate,
					LandingDataEndDate:      catch.LandingDataEndDate,
					PreApproved:             preApproved,
					IsHighRisk:              highRisk,
				})
			}
		}
	}

	return index
}

// match returns the usage records for a species, falling back to any
// configured alias, along with the index key that matched.
func (idx usageIndex) match(snap *refdata.Snapshot, species string) ([]domain.CertificateUsageRecord, string, bool) {
	if usages, ok := idx[species]; ok {
		return usages, species, true
	}
	for code, usages := range idx {
		if snap.SpeciesMatch(species, code) {
			return usages, code, true
		}
	}
	return nil, "", false
}
