package domain

import (
	"time"
)

// LandingSource identifies the upstream system a landing record came from.
type LandingSource string

const (
	// SourceDeclaration is a skipper-signed landing declaration.
	SourceDeclaration LandingSource = "LANDING_DECLARATION"

	// SourceCatchRecording is a catch recording made at the point of sale.
	SourceCatchRecording LandingSource = "CATCH_RECORDING"

	// SourceElog is an electronic logbook entry. Elog landings are the only
	// source eligible for the de-minimis species-mismatch allowance.
	SourceElog LandingSource = "ELOG"
)

// Landing is a declared catch event retrieved from the upstream landings
// system. Read-only to this engine.
type Landing struct {
	ID        string        `json:"id"`
	RSSNumber string        `json:"rssNumber"`
	LandedAt  time.Time     `json:"landedAt"`
	Source    LandingSource `json:"source"`
	Items     []LandingItem `json:"items"`
}

// LandingItem is one species line of a landing.
type LandingItem struct {
	Species          string  `json:"species"`
	Weight           float64 `json:"weight"`
	ConversionFactor float64 `json:"conversionFactor,omitempty"`
	State            string  `json:"state,omitempty"`
	Presentation     string  `json:"presentation,omitempty"`
}

// AggregatedLanding is the per-vessel-per-day summary produced by the
// transformer. Keyed by (RSS number, calendar day); never persisted directly.
type AggregatedLanding struct {
	RSSNumber string              `json:"rssNumber"`
	Date      time.Time           `json:"date"`
	Source    LandingSource       `json:"source"`
	Species   []AggregatedSpecies `json:"species"`
}

// AggregatedSpecies holds the live-weight-equivalent landed weight for one
// species within an aggregated landing, with the provenance of the first
// contributing record.
type AggregatedSpecies struct {
	Species      string        `json:"species"`
	LandedWeight float64       `json:"landedWeight"`
	IsEstimate   bool          `json:"isEstimate"`
	Source       LandingSource `json:"source"`
}

// LandingKey identifies a landing group by registry scheme identifier and
// calendar day.
type LandingKey struct {
	RSSNumber string    `json:"rssNumber"`
	Date      time.Time `json:"date"`
}
