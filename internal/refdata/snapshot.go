// Package refdata owns the reference-data cache: immutable snapshots of the
// vessel roster, vessel-of-interest list, species aliases, conversion
// factors, exporter behaviour, and risk weighting, replaced wholesale on
// each refresh.
package refdata

import (
	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Snapshot is an immutable view of all reference tables. Readers hold a
// snapshot for the duration of a unit of work and never observe a partial
// update.
type Snapshot struct {
	vessels           []domain.Vessel
	vesselsByRSS      map[string][]domain.Vessel
	vesselsByPLN      map[string][]domain.Vessel
	vesselsOfInterest map[string]domain.VesselOfInterest
	weighting         domain.Weighting
	speciesAliases    map[string][]string
	conversionFactors map[string]domain.ConversionFactor
	exporterBehaviour []domain.ExporterBehaviour
}

// emptySnapshot is what readers see before the first refresh and after a purge.
func emptySnapshot() *Snapshot {
	return buildSnapshot(nil, nil, nil, nil, nil, nil)
}

func buildSnapshot(
	vessels []domain.Vessel,
	voi []domain.VesselOfInterest,
	weighting *domain.Weighting,
	aliases []domain.SpeciesAlias,
	factors []domain.ConversionFactor,
	behaviour []domain.ExporterBehaviour,
) *Snapshot {
	s := &Snapshot{
		vessels:           vessels,
		vesselsByRSS:      make(map[string][]domain.Vessel),
		vesselsByPLN:      make(map[string][]domain.Vessel),
		vesselsOfInterest: make(map[string]domain.VesselOfInterest, len(voi)),
		speciesAliases:    make(map[string][]string, len(aliases)),
		conversionFactors: make(map[string]domain.ConversionFactor, len(factors)),
		exporterBehaviour: behaviour,
	}

	for _, v := range vessels {
		s.vesselsByRSS[v.RSSNumber] = append(s.vesselsByRSS[v.RSSNumber], v)
		s.vesselsByPLN[v.PLN] = append(s.vesselsByPLN[v.PLN], v)
	}
	for _, v := range voi {
		s.vesselsOfInterest[v.PLN] = v
	}
	if weighting != nil {
		s.weighting = *weighting
	}
	// Later entries for the same code overwrite earlier ones.
	for _, a := range aliases {
		s.speciesAliases[a.Code] = a.Aliases
	}
	for _, f := range factors {
		s.conversionFactors[f.Species] = f
	}

	return s
}

// LicencesForRSS returns the roster rows for an RSS number.
func (s *Snapshot) LicencesForRSS(rss string) []domain.Vessel {
	return s.vesselsByRSS[rss]
}

// LicencesForPLN returns the roster rows for a vessel mark. The lookup is an
// exact key match; marks that are lexical prefixes of one another never
// collide.
func (s *Snapshot) LicencesForPLN(pln string) []domain.Vessel {
	return s.vesselsByPLN[pln]
}

// IsVesselOfInterest reports whether a vessel mark is on the
// vessel-of-interest list.
func (s *Snapshot) IsVesselOfInterest(pln string) bool {
	_, ok := s.vesselsOfInterest[pln]
	return ok
}

// Weighting returns the live risk weighting.
func (s *Snapshot) Weighting() domain.Weighting {
	return s.weighting
}

// ConversionFactor returns the conversion-factor row for a species code.
func (s *Snapshot) ConversionFactor(species string) (domain.ConversionFactor, bool) {
	f, ok := s.conversionFactors[species]
	return f, ok
}

// ExporterBehaviour returns all exporter-behaviour rows.
func (s *Snapshot) ExporterBehaviour() []domain.ExporterBehaviour {
	return s.exporterBehaviour
}

// SpeciesMatch reports whether two species codes refer to the same species.
// The alias map is written directionally on load but read symmetrically:
// both the direct entry and reverse membership are checked.
func (s *Snapshot) SpeciesMatch(a, b string) bool {
	if a == b {
		return true
	}
	for _, alias := range s.speciesAliases[a] {
		if alias == b {
			return true
		}
	}
	for _, alias := range s.speciesAliases[b] {
		if alias == a {
			return true
		}
	}
	return false
}
