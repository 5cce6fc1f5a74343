// Package risk computes the composite risk score for a
// (vessel, species, exporter) triple. All functions are pure given a
// reference-data snapshot.
package risk

import (
	"github.com/opensource-fisheries/gannet/internal/refdata"
)

const (
	// defaultVesselScore applies when the vessel is not on the
	// vessel-of-interest list.
	defaultVesselScore = 0.5

	// defaultSpeciesScore covers a missing conversion-factor row or a row
	// with no numeric risk score.
	defaultSpeciesScore = 0.5

	// defaultExporterScore applies when no behaviour row matches, or when
	// neither exporter identifier is supplied.
	defaultExporterScore = 1.0
)

// VesselScore is 1.0 for a vessel on the vessel-of-interest list, else 0.5.
func VesselScore(snap *refdata.Snapshot, pln string) float64 {
	if snap.IsVesselOfInterest(pln) {
		return 1.0
	}
	return defaultVesselScore
}

// SpeciesScore is the cached risk score on the species' conversion-factor
// row, or 0.5 when the row or score is missing.
func SpeciesScore(snap *refdata.Snapshot, species string) float64 {
	f, ok := snap.ConversionFactor(species)
	if !ok || f.RiskScore == nil {
		return defaultSpeciesScore
	}
	return *f.RiskScore
}

// ExporterScore looks up the exporter-behaviour table. Precedence: exact
// (account, contact) match, then contact-only rows, then account-only rows,
// then the default. With neither identifier supplied, the default applies
// immediately.
func ExporterScore(snap *refdata.Snapshot, accountID, contactID string) float64 {
	if accountID == "" && contactID == "" {
		return defaultExporterScore
	}

	rows := snap.ExporterBehaviour()
	for _, b := range rows {
		if b.AccountID != "" && b.ContactID != "" && b.AccountID == accountID && b.ContactID == contactID {
			return b.Score
		}
	}
	for _, b := range rows {
		if b.AccountID == "" && b.ContactID != "" && b.ContactID == contactID {
			return b.Score
		}
	}
	for _, b := range rows {
		if b.ContactID == "" && b.AccountID != "" && b.AccountID == accountID {
			return b.Score
		}
	}
	return defaultExporterScore
}

// Score is the weighted multiplicative risk score:
// (vessel·Wv)·(species·Ws)·(exporter·We).
func Score(snap *refdata.Snapshot, pln, species, accountID, contactID string) float64 {
	w := snap.Weighting()
	return VesselScore(snap, pln) * w.Vessel *
		SpeciesScore(snap, species) * w.Species *
		ExporterScore(snap, accountID, contactID) * w.Exporter
}

// IsHighRisk reports whether a total score exceeds the live threshold
// (strict greater-than).
func IsHighRisk(snap *refdata.Snapshot, total float64) bool {
	return total > snap.Weighting().Threshold
}

// ScoreUsage combines Score and IsHighRisk for one usage record.
func ScoreUsage(snap *refdata.Snapshot, pln, species, accountID, contactID string) (float64, bool) {
	total := Score(snap, pln, species, accountID, contactID)
	return total, IsHighRisk(snap, total)
}
