// Package transform aggregates raw landing records into per-vessel-per-day
// summaries.
package transform

import (
	"sort"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Aggregate groups raw landings by (RSS number, calendar day), ordered by
// vessel identifier then landed timestamp, and produces one aggregated
// species entry per species per group.
//
// Within a group all items are flattened in order, tagged with their parent
// landing's source, then grouped by species. Only the first item of each
// species group contributes: landed weight is the item weight scaled by its
// conversion factor (1 when unset), and the estimate flag is set unless the
// contributing record is a landing declaration. This mirrors the upstream
// system's single-summary-per-species contract; later same-species items in
// the group are ignored deliberately.
func Aggregate(landings []*domain.Landing) []domain.AggregatedLanding {
	if len(landings) == 0 {
		return nil
	}

	ordered := make([]*domain.Landing, len(landings))
	copy(ordered, landings)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].RSSNumber != ordered[j].RSSNumber {
			return ordered[i].RSSNumber < ordered[j].RSSNumber
		}
		return ordered[i].LandedAt.Before(ordered[j].LandedAt)
	})

	type groupKey struct {
		rss string
		day string
	}

	var result []domain.AggregatedLanding
	index := make(map[groupKey]int)

	for _, landing := range ordered {
		day := domain.DayOf(landing.LandedAt)
		key := groupKey{rss: landing.RSSNumber, day: day.Format(domain.DateFormat)}

		i, ok := index[key]
		if !ok {
			result = append(result, domain.AggregatedLanding{
				RSSNumber: landing.RSSNumber,
				Date:      day,
				Source:    landing.Source,
			})
			i = len(result) - 1
			index[key] = i
		}
		agg := &result[i]

		for _, item := range landing.Items {
			if hasSpecies(agg.Species, item.Species) {
				continue
			}
			factor := item.ConversionFactor
			if factor == 0 {
				factor = 1
			}
			agg.Species = append(agg.Species, domain.AggregatedSpecies{
				Species:      item.Species,
				LandedWeight: item.Weight * factor,
				IsEstimate:   landing.Source != domain.SourceDeclaration,
				Source:       landing.Source,
			})
		}
	}

	return result
}

func hasSpecies(entries []domain.AggregatedSpecies, species string) bool {
	for _, e := range entries {
		if e.Species == species {
			return true
		}
	}
	return false
}
