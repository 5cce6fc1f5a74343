// Package vessel resolves between vessel marks (PLNs) and registry scheme
// identifiers (RSS numbers) using the cached roster.
package vessel

import (
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
	"github.com/opensource-fisheries/gannet/internal/refdata"
)

// Resolver maps (vessel identifier, date) pairs in both directions over the
// current reference-data snapshot. A miss is an absent result, not an error.
type Resolver struct {
	refdata *refdata.Cache
}

// NewResolver creates a resolver backed by the reference-data cache.
func NewResolver(cache *refdata.Cache) *Resolver {
	return &Resolver{refdata: cache}
}

// ResolvePLN returns the trading mark for an RSS number whose licence
// validity window contains the landed date. Validity is compared at day
// precision, inclusive at both ends.
func (r *Resolver) ResolvePLN(rssNumber string, date time.Time) (string, bool) {
	for _, v := range r.refdata.Snapshot().LicencesForRSS(rssNumber) {
		if licenceCovers(v, date) {
			return v.PLN, true
		}
	}
	return "", false
}

// ResolveRSS returns the RSS number for a vessel mark on the given date. The
// mark lookup is an exact index key, never a prefix match; the first licence
// in index order whose window contains the date wins.
func (r *Resolver) ResolveRSS(pln string, date time.Time) (string, bool) {
	for _, v := range r.refdata.Snapshot().LicencesForPLN(pln) {
		if licenceCovers(v, date) {
			return v.RSSNumber, true
		}
	}
	return "", false
}

// licenceCovers checks [validFrom, validTo] containment on the date portion
// of the validity timestamps.
func licenceCovers(v domain.Vessel, date time.Time) bool {
	day := domain.DayOf(date)
	from := domain.DayOf(v.LicenceValidFrom)
	to := domain.DayOf(v.LicenceValidTo)
	return !day.Before(from) && !day.After(to)
}
