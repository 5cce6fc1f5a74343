// Package domain defines the core interfaces and types for Gannet.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence contract for landings, certificates,
// consolidated landings, reference data, and alert rule configurations.
type Repository interface {
	// Raw landings (upstream feed; read back by the batch and incremental paths)
	SaveLanding(ctx context.Context, landing *Landing) error
	FetchLandings(ctx context.Context, start, end time.Time) ([]*Landing, error)
	// FetchLandingsByKeys returns landings for the given (RSS number, day)
	// pairs, de-duplicated on the key.
	FetchLandingsByKeys(ctx context.Context, keys []LandingKey) ([]*Landing, error)

	// Certificates
	SaveCertificate(ctx context.Context, cert *Certificate) error
	UpdateCertificateStatus(ctx context.Context, documentNumber string, status CertificateStatus) error
	// FetchCertificatesReferencing returns all certificates with any catch
	// record for the given vessel mark and day.
	FetchCertificatesReferencing(ctx context.Context, pln string, date time.Time) ([]*Certificate, error)
	FetchCertificateByNumberAndStatus(ctx context.Context, documentNumber string, status CertificateStatus) (*Certificate, error)

	// Pre-approvals
	IsDocumentPreApproved(ctx context.Context, documentNumber string) (bool, error)
	SavePreApproval(ctx context.Context, documentNumber string) error

	// Consolidated landings
	UpsertConsolidatedLanding(ctx context.Context, doc *ConsolidatedLanding) error
	DeleteConsolidatedLanding(ctx context.Context, pln string, date time.Time) error
	FindConsolidatedLanding(ctx context.Context, pln string, date time.Time) (*ConsolidatedLanding, error)
	FindConsolidatedLandingsByDocument(ctx context.Context, documentNumber string) ([]*ConsolidatedLanding, error)
	DeleteConsolidatedLandingsInRange(ctx context.Context, start, end time.Time) error
	ListConsolidatedLandings(ctx context.Context) ([]*ConsolidatedLanding, error)

	// Reference data (loader source for the refdata cache)
	ListVessels(ctx context.Context) ([]Vessel, error)
	SaveVessel(ctx context.Context, v Vessel) error
	ListVesselsOfInterest(ctx context.Context) ([]VesselOfInterest, error)
	SaveVesselOfInterest(ctx context.Context, v VesselOfInterest) error
	GetWeighting(ctx context.Context) (*Weighting, error)
	SaveWeighting(ctx context.Context, w Weighting) error
	ListSpeciesAliases(ctx context.Context) ([]SpeciesAlias, error)
	SaveSpeciesAlias(ctx context.Context, a SpeciesAlias) error
	ListConversionFactors(ctx context.Context) ([]ConversionFactor, error)
	SaveConversionFactor(ctx context.Context, f ConversionFactor) error
	ListExporterBehaviour(ctx context.Context) ([]ExporterBehaviour, error)
	SaveExporterBehaviour(ctx context.Context, b ExporterBehaviour) error

	// Alert rule configurations
	SaveRuleConfig(ctx context.Context, rule *RuleConfig) error
	GetRuleConfig(ctx context.Context, ruleID string) (*RuleConfig, error)
	ListRuleConfigs(ctx context.Context) ([]*RuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
