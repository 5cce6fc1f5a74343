package domain

import (
	"time"
)

// ConsolidatedLandingItem is the per-species outcome for one (vessel, day).
// Species mismatches that only matched via an alias are folded into the same
// item list.
type ConsolidatedLandingItem struct {
	Species            string                   `json:"species"`
	LandedWeight       float64                  `json:"landedWeight"`
	IsEstimate         bool                     `json:"isEstimate"`
	ExportWeight       float64                  `json:"exportWeight"`
	Usages             []CertificateUsageRecord `json:"usages"`
	IsOverusedAllCerts bool                     `json:"isOverusedAllCerts"`
	IsWithinDeminimus  bool                     `json:"isWithinDeminimus"`
}

// Qualifies reports whether the item justifies keeping its parent document.
func (i *ConsolidatedLandingItem) Qualifies() bool {
	return i.IsOverusedAllCerts || i.IsWithinDeminimus
}

// ConsolidatedLanding is the persisted, queryable consolidation artifact for
// one (vessel, day). It is replaced as a whole document on each batch write;
// void/update mutate individual items and re-save. A document with no
// qualifying items must not exist.
type ConsolidatedLanding struct {
	PLN       string                    `json:"pln"`
	RSSNumber string                    `json:"rssNumber"`
	Date      time.Time                 `json:"date"`
	Source    LandingSource             `json:"source"`
	Items     []ConsolidatedLandingItem `json:"items"`
	UpdatedAt time.Time                 `json:"updatedAt,omitempty"`
}

// HasQualifyingItems reports whether any item is overused or within the
// de-minimis allowance. Documents where this is false are deleted rather
// than persisted.
func (c *ConsolidatedLanding) HasQualifyingItems() bool {
	for i := range c.Items {
		if c.Items[i].Qualifies() {
			return true
		}
	}
	return false
}
