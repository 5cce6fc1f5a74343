package domain

import (
	"time"
)

// Vessel is one licence row of the vessel roster. A vessel mark (PLN) can
// appear on several rows, one per licence validity period; the RSS number
// ties the mark to a specific period.
type Vessel struct {
	RSSNumber        string    `json:"rssNumber"`
	PLN              string    `json:"pln"`
	Name             string    `json:"name,omitempty"`
	LicenceValidFrom time.Time `json:"licenceValidFrom"`
	LicenceValidTo   time.Time `json:"licenceValidTo"`
}

// VesselOfInterest flags a vessel mark for elevated scrutiny.
type VesselOfInterest struct {
	PLN   string `json:"pln"`
	Notes string `json:"notes,omitempty"`
}

// Weighting holds the risk weights and the high-risk threshold. Exactly one
// instance is live at a time; scores at or below Threshold are low risk.
type Weighting struct {
	Vessel    float64 `json:"vessel"`
	Species   float64 `json:"species"`
	Exporter  float64 `json:"exporter"`
	Threshold float64 `json:"threshold"`
}

// SpeciesAlias maps a species code to the alternate codes considered the
// same species for matching. On load, later entries for the same code
// replace earlier ones; at query time the mapping is read symmetrically.
type SpeciesAlias struct {
	Code    string   `json:"code"`
	Aliases []string `json:"aliases"`
}

// ConversionFactor is a species conversion-factor row. RiskScore is nil when
// the upstream row carries no numeric score.
type ConversionFactor struct {
	Species   string   `json:"species"`
	Factor    float64  `json:"factor"`
	RiskScore *float64 `json:"riskScore,omitempty"`
}

// ExporterBehaviour is a historical-behaviour score for an exporter,
// keyed by account and/or contact identifier. Either key may be empty.
type ExporterBehaviour struct {
	AccountID string  `json:"accountId,omitempty"`
	ContactID string  `json:"contactId,omitempty"`
	Score     float64 `json:"score"`
}
