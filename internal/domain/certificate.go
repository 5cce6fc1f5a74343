package domain

import (
	"time"
)

// CertificateStatus is the lifecycle state of an export certificate.
type CertificateStatus string

const (
	CertStatusDraft    CertificateStatus = "DRAFT"
	CertStatusComplete CertificateStatus = "COMPLETE"
	CertStatusVoid     CertificateStatus = "VOID"
)

// Certificate is an export catch certificate as submitted by an exporter.
type Certificate struct {
	DocumentNumber    string            `json:"documentNumber"`
	Status            CertificateStatus `json:"status"`
	ExporterAccountID string            `json:"exporterAccountId,omitempty"`
	ExporterContactID string            `json:"exporterContactId,omitempty"`
	Products          []Product         `json:"products"`
}

// Product is one commodity line on a certificate. The conversion factor
// scales a catch's product weight back to live-weight equivalent.
type Product struct {
	Species          string        `json:"species"`
	Commodity        string        `json:"commodity,omitempty"`
	ConversionFactor float64       `json:"conversionFactor,omitempty"`
	Catches          []CatchRecord `json:"catches"`
}

// CatchRecord ties a product line back to a specific vessel landing.
type CatchRecord struct {
	LandingID               string     `json:"landingId,omitempty"`
	PLN                     string     `json:"pln"`
	Date                    time.Time  `json:"date"`
	Weight                  float64    `json:"weight"`
	DataEverExpected        bool       `json:"dataEverExpected"`
	LandingDataExpectedDate *time.Time `json:"landingDataExpectedDate,omitempty"`
	LandingDataEndDate      *time.Time `json:"landingDataEndDate,omitempty"`
}

// CertificateUsageRecord is one line of fish usage taken from a certificate
// product, built transiently while consolidating. Weight is already adjusted
// by the product's conversion factor. Immutable once constructed.
type CertificateUsageRecord struct {
	LandingID               string     `json:"landingId,omitempty"`
	DocumentNumber          string     `json:"documentNumber"`
	Weight                  float64    `json:"weight"`
	DataEverExpected        bool       `json:"dataEverExpected"`
	LandingDataExpectedDate *time.Time `json:"landingDataExpectedDate,omitempty"`
	LandingDataEndDate      *time.Time `json:"landingDataEndDate,omitempty"`
	PreApproved             bool       `json:"preApproved"`
	IsHighRisk              bool       `json:"isHighRisk"`
}
