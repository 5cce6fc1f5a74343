package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Reference-data queries. These tables are loaded wholesale into the
// in-memory snapshot; writes are upserts driven by the refdata API.

// ListVessels returns every licence row of the vessel roster.
func (r *SQLRepository) ListVessels(ctx context.Context) ([]domain.Vessel, error) {
	query := `
		SELECT rss_number, pln, name, licence_valid_from, licence_valid_to
		FROM vessels
		ORDER BY rss_number
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vessels []domain.Vessel
	for rows.Next() {
		var v domain.Vessel
		var from, to string

		if err := rows.Scan(&v.RSSNumber, &v.PLN, &v.Name, &from, &to); err != nil {
			return nil, err
		}

		if v.LicenceValidFrom, err = parseDay(from); err != nil {
			return nil, err
		}
		if v.LicenceValidTo, err = parseDay(to); err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}

	return vessels, rows.Err()
}

// SaveVessel stores or replaces a licence row, keyed by RSS number.
func (r *SQLRepository) SaveVessel(ctx context.Context, v domain.Vessel) error {
	if v.RSSNumber == "" || v.PLN == "" {
		return fmt.Errorf("%w: rss number and pln are required", ErrInvalidInput)
	}

	query := `
		INSERT INTO vessels (rss_number, pln, name, licence_valid_from, licence_valid_to)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(rss_number) DO UPDATE SET
			pln = excluded.pln,
			name = excluded.name,
			licence_valid_from = excluded.licence_valid_from,
			licence_valid_to = excluded.licence_valid_to
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		v.RSSNumber, v.PLN, v.Name,
		v.LicenceValidFrom.Format(domain.DateFormat),
		v.LicenceValidTo.Format(domain.DateFormat),
	)
	return err
}

// ListVesselsOfInterest returns the flagged vessel marks.
func (r *SQLRepository) ListVesselsOfInterest(ctx context.Context) ([]domain.VesselOfInterest, error) {
	query := `SELECT pln, notes FROM vessels_of_interest ORDER BY pln`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vessels []domain.VesselOfInterest
	for rows.Next() {
		var v domain.VesselOfInterest
		if err := rows.Scan(&v.PLN, &v.Notes); err != nil {
			return nil, err
		}
		vessels = append(vessels, v)
	}

	return vessels, rows.Err()
}

// SaveVesselOfInterest flags a vessel mark.
func (r *SQLRepository) SaveVesselOfInterest(ctx context.Context, v domain.VesselOfInterest) error {
	if v.PLN == "" {
		return fmt.Errorf("%w: pln is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO vessels_of_interest (pln, notes)
		VALUES (?, ?)
		ON CONFLICT(pln) DO UPDATE SET notes = excluded.notes
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), v.PLN, v.Notes)
	return err
}

// GetWeighting returns the live risk weighting row.
func (r *SQLRepository) GetWeighting(ctx context.Context) (*domain.Weighting, error) {
	query := `SELECT vessel, species, exporter, threshold FROM weightings WHERE id = 1`

	var w domain.Weighting
	err := r.db.QueryRowContext(ctx, r.rebind(query)).Scan(&w.Vessel, &w.Species, &w.Exporter, &w.Threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &w, nil
}

// SaveWeighting replaces the live risk weighting row.
func (r *SQLRepository) SaveWeighting(ctx context.Context, w domain.Weighting) error {
	query := `
		INSERT INTO weightings (id, vessel, species, exporter, threshold)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			vessel = excluded.vessel,
			species = excluded.species,
			exporter = excluded.exporter,
			threshold = excluded.threshold
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), w.Vessel, w.Species, w.Exporter, w.Threshold)
	return err
}

// ListSpeciesAliases returns every alias mapping row.
func (r *SQLRepository) ListSpeciesAliases(ctx context.Context) ([]domain.SpeciesAlias, error) {
	query := `SELECT code, aliases FROM species_aliases ORDER BY code`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aliases []domain.SpeciesAlias
	for rows.Next() {
		var a domain.SpeciesAlias
		var list string

		if err := rows.Scan(&a.Code, &list); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(list), &a.Aliases); err != nil {
			return nil, fmt.Errorf("failed to parse aliases for %s: %w", a.Code, err)
		}
		aliases = append(aliases, a)
	}

	return aliases, rows.Err()
}

// SaveSpeciesAlias stores or replaces the alias list for a species code.
func (r *SQLRepository) SaveSpeciesAlias(ctx context.Context, a domain.SpeciesAlias) error {
	if a.Code == "" {
		return fmt.Errorf("%w: species code is required", ErrInvalidInput)
	}

	list, _ := json.Marshal(a.Aliases)

	query := `
		INSERT INTO species_aliases (code, aliases)
		VALUES (?, ?)
		ON CONFLICT(code) DO UPDATE SET aliases = excluded.aliases
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), a.Code, string(list))
	return err
}

// ListConversionFactors returns every conversion-factor row.
func (r *SQLRepository) ListConversionFactors(ctx context.Context) ([]domain.ConversionFactor, error) {
	query := `SELECT species, factor, risk_score FROM conversion_factors ORDER BY species`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var factors []domain.ConversionFactor
	for rows.Next() {
		var f domain.ConversionFactor
		var score sql.NullFloat64

		if err := rows.Scan(&f.Species, &f.Factor, &score); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			f.RiskScore = &v
		}
		factors = append(factors, f)
	}

	return factors, rows.Err()
}

// SaveConversionFactor stores or replaces a conversion-factor row.
func (r *SQLRepository) SaveConversionFactor(ctx context.Context, f domain.ConversionFactor) error {
	if f.Species == "" {
		return fmt.Errorf("%w: species is required", ErrInvalidInput)
	}

	var score sql.NullFloat64
	if f.RiskScore != nil {
		score = sql.NullFloat64{Float64: *f.RiskScore, Valid: true}
	}

	query := `
		INSERT INTO conversion_factors (species, factor, risk_score)
		VALUES (?, ?, ?)
		ON CONFLICT(species) DO UPDATE SET
			factor = excluded.factor,
			risk_score = excluded.risk_score
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), f.Species, f.Factor, score)
	return err
}

// ListExporterBehaviour returns every exporter behaviour score.
func (r *SQLRepository) ListExporterBehaviour(ctx context.Context) ([]domain.ExporterBehaviour, error) {
	query := `SELECT account_id, contact_id, score FROM exporter_behaviour ORDER BY account_id, contact_id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var behaviours []domain.ExporterBehaviour
	for rows.Next() {
		var b domain.ExporterBehaviour
		if err := rows.Scan(&b.AccountID, &b.ContactID, &b.Score); err != nil {
			return nil, err
		}
		behaviours = append(behaviours, b)
	}

	return behaviours, rows.Err()
}

// SaveExporterBehaviour stores or replaces an exporter behaviour score.
func (r *SQLRepository) SaveExporterBehaviour(ctx context.Context, b domain.ExporterBehaviour) error {
	if b.AccountID == "" && b.ContactID == "" {
		return fmt.Errorf("%w: account id or contact id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO exporter_behaviour (account_id, contact_id, score)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id, contact_id) DO UPDATE SET score = excluded.score
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), b.AccountID, b.ContactID, b.Score)
	return err
}

func parseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(domain.DateFormat, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return t, nil
}
