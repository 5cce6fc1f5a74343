// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Sentinels aliased from domain so callers on either side of the interface
// test against the same values.
var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// dayKey formats a timestamp as the calendar-day string used for landing keys.
func dayKey(t time.Time) string {
	return domain.DayOf(t).Format(domain.DateFormat)
}

// SaveLanding stores or replaces a landing record from the upstream feed.
func (r *SQLRepository) SaveLanding(ctx context.Context, landing *domain.Landing) error {
	if landing.ID == "" || landing.RSSNumber == "" {
		return fmt.Errorf("%w: landing id and rss number are required", ErrInvalidInput)
	}

	items, _ := json.Marshal(landing.Items)

	query := `
		INSERT INTO landings (id, rss_number, landed_at, landed_date, source, items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rss_number = excluded.rss_number,
			landed_at = excluded.landed_at,
			landed_date = excluded.landed_date,
			source = excluded.source,
			items = excluded.items
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		landing.ID, landing.RSSNumber, landing.LandedAt, dayKey(landing.LandedAt),
		string(landing.Source), string(items), time.Now().UTC(),
	)
	return err
}

// FetchLandings retrieves landings with a landed timestamp in [start, end].
func (r *SQLRepository) FetchLandings(ctx context.Context, start, end time.Time) ([]*domain.Landing, error) {
	query := `
		SELECT id, rss_number, landed_at, source, items
		FROM landings
		WHERE landed_at >= ? AND landed_at <= ?
		ORDER BY rss_number, landed_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLandings(rows)
}

// FetchLandingsByKeys retrieves landings for the given (RSS number, day)
// pairs. Duplicate keys are queried once.
func (r *SQLRepository) FetchLandingsByKeys(ctx context.Context, keys []domain.LandingKey) ([]*domain.Landing, error) {
	query := `
		SELECT id, rss_number, landed_at, source, items
		FROM landings
		WHERE rss_number = ? AND landed_date = ?
		ORDER BY landed_at
	`

	seen := make(map[string]struct{})
	var landings []*domain.Landing

	for _, key := range keys {
		k := key.RSSNumber + "|" + dayKey(key.Date)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		rows, err := r.db.QueryContext(ctx, r.rebind(query), key.RSSNumber, dayKey(key.Date))
		if err != nil {
			return nil, err
		}

		batch, err := scanLandings(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		landings = append(landings, batch...)
	}

	return landings, nil
}

func scanLandings(rows *sql.Rows) ([]*domain.Landing, error) {
	var landings []*domain.Landing
	for rows.Next() {
		var l domain.Landing
		var source, items string

		if err := rows.Scan(&l.ID, &l.RSSNumber, &l.LandedAt, &source, &items); err != nil {
			return nil, err
		}

		l.Source = domain.LandingSource(source)
		if err := json.Unmarshal([]byte(items), &l.Items); err != nil {
			return nil, fmt.Errorf("failed to parse landing items for %s: %w", l.ID, err)
		}
		landings = append(landings, &l)
	}
	return landings, rows.Err()
}

// SaveCertificate stores or replaces a certificate and rebuilds its
// (vessel mark, day) side index from the catch records.
func (r *SQLRepository) SaveCertificate(ctx context.Context, cert *domain.Certificate) error {
	if cert.DocumentNumber == "" {
		return fmt.Errorf("%w: document number is required", ErrInvalidInput)
	}
	if cert.Status == "" {
		return fmt.Errorf("%w: certificate status is required", ErrInvalidInput)
	}

	products, _ := json.Marshal(cert.Products)
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO certificates (document_number, status, exporter_account_id, exporter_contact_id, products, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_number) DO UPDATE SET
			status = excluded.status,
			exporter_account_id = excluded.exporter_account_id,
			exporter_contact_id = excluded.exporter_contact_id,
			products = excluded.products,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, r.rebind(upsert),
		cert.DocumentNumber, string(cert.Status),
		cert.ExporterAccountID, cert.ExporterContactID,
		string(products), now, now,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`DELETE FROM certificate_landings WHERE document_number = ?`),
		cert.DocumentNumber,
	); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO certificate_landings (document_number, pln, landed_date)
		VALUES (?, ?, ?)
		ON CONFLICT(document_number, pln, landed_date) DO NOTHING
	`)
	for _, product := range cert.Products {
		for _, catch := range product.Catches {
			if catch.PLN == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, insert, cert.DocumentNumber, catch.PLN, dayKey(catch.Date)); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// UpdateCertificateStatus transitions a certificate's lifecycle state.
func (r *SQLRepository) UpdateCertificateStatus(ctx context.Context, documentNumber string, status domain.CertificateStatus) error {
	query := `
		UPDATE certificates
		SET status = ?, updated_at = ?
		WHERE document_number = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), documentNumber)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// FetchCertificatesReferencing returns the certificates with any catch
// record for the given vessel mark and day, via the side index.
func (r *SQLRepository) FetchCertificatesReferencing(ctx context.Context, pln string, date time.Time) ([]*domain.Certificate, error) {
	query := `
		SELECT c.document_number, c.status, c.exporter_account_id, c.exporter_contact_id, c.products
		FROM certificates c
		JOIN certificate_landings cl ON cl.document_number = c.document_number
		WHERE cl.pln = ? AND cl.landed_date = ?
		ORDER BY c.document_number
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), pln, dayKey(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []*domain.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}

	return certs, rows.Err()
}

// FetchCertificateByNumberAndStatus retrieves a certificate only when it is
// in the given lifecycle state.
func (r *SQLRepository) FetchCertificateByNumberAndStatus(ctx context.Context, documentNumber string, status domain.CertificateStatus) (*domain.Certificate, error) {
	query := `
		SELECT document_number, status, exporter_account_id, exporter_contact_id, products
		FROM certificates
		WHERE document_number = ? AND status = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), documentNumber, string(status))

	var cert domain.Certificate
	var st, products string

	err := row.Scan(&cert.DocumentNumber, &st, &cert.ExporterAccountID, &cert.ExporterContactID, &products)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cert.Status = domain.CertificateStatus(st)
	if err := json.Unmarshal([]byte(products), &cert.Products); err != nil {
		return nil, fmt.Errorf("failed to parse certificate products for %s: %w", cert.DocumentNumber, err)
	}

	return &cert, nil
}

func scanCertificate(rows *sql.Rows) (*domain.Certificate, error) {
	var cert domain.Certificate
	var status, products string

	if err := rows.Scan(&cert.DocumentNumber, &status, &cert.ExporterAccountID, &cert.ExporterContactID, &products); err != nil {
		return nil, err
	}

	cert.Status = domain.CertificateStatus(status)
	if err := json.Unmarshal([]byte(products), &cert.Products); err != nil {
		return nil, fmt.Errorf("failed to parse certificate products for %s: %w", cert.DocumentNumber, err)
	}

	return &cert, nil
}

// IsDocumentPreApproved reports whether a document number is on the
// pre-approved list.
func (r *SQLRepository) IsDocumentPreApproved(ctx context.Context, documentNumber string) (bool, error) {
	query := `SELECT 1 FROM pre_approvals WHERE document_number = ?`

	var one int
	err := r.db.QueryRowContext(ctx, r.rebind(query), documentNumber).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SavePreApproval adds a document number to the pre-approved list.
func (r *SQLRepository) SavePreApproval(ctx context.Context, documentNumber string) error {
	if documentNumber == "" {
		return fmt.Errorf("%w: document number is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO pre_approvals (document_number, created_at)
		VALUES (?, ?)
		ON CONFLICT(document_number) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), documentNumber, time.Now().UTC())
	return err
}

// UpsertConsolidatedLanding replaces the consolidated document for its
// (vessel mark, day) key.
func (r *SQLRepository) UpsertConsolidatedLanding(ctx context.Context, doc *domain.ConsolidatedLanding) error {
	if doc.PLN == "" {
		return fmt.Errorf("%w: pln is required", ErrInvalidInput)
	}

	items, _ := json.Marshal(doc.Items)

	query := `
		INSERT INTO consolidated_landings (pln, landed_date, rss_number, source, items, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pln, landed_date) DO UPDATE SET
			rss_number = excluded.rss_number,
			source = excluded.source,
			items = excluded.items,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		doc.PLN, dayKey(doc.Date), doc.RSSNumber,
		string(doc.Source), string(items), doc.UpdatedAt,
	)
	return err
}

// DeleteConsolidatedLanding removes the document for a (vessel mark, day)
// key. Deleting a missing document is a no-op.
func (r *SQLRepository) DeleteConsolidatedLanding(ctx context.Context, pln string, date time.Time) error {
	query := `DELETE FROM consolidated_landings WHERE pln = ? AND landed_date = ?`
	_, err := r.db.ExecContext(ctx, r.rebind(query), pln, dayKey(date))
	return err
}

// FindConsolidatedLanding retrieves the document for a (vessel mark, day) key.
func (r *SQLRepository) FindConsolidatedLanding(ctx context.Context, pln string, date time.Time) (*domain.ConsolidatedLanding, error) {
	query := `
		SELECT pln, landed_date, rss_number, source, items, updated_at
		FROM consolidated_landings
		WHERE pln = ? AND landed_date = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), pln, dayKey(date))

	doc, err := scanConsolidated(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// FindConsolidatedLandingsByDocument returns every consolidated landing with
// at least one usage drawn from the given certificate. The items column is
// prefiltered with a substring match and confirmed against the parsed usages.
func (r *SQLRepository) FindConsolidatedLandingsByDocument(ctx context.Context, documentNumber string) ([]*domain.ConsolidatedLanding, error) {
	query := `
		SELECT pln, landed_date, rss_number, source, items, updated_at
		FROM consolidated_landings
		WHERE items LIKE ?
		ORDER BY pln, landed_date
	`

	pattern := "%" + `"documentNumber":` + string(mustJSON(documentNumber)) + "%"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.ConsolidatedLanding
	for rows.Next() {
		doc, err := scanConsolidated(rows.Scan)
		if err != nil {
			return nil, err
		}
		if referencesDocument(doc, documentNumber) {
			docs = append(docs, doc)
		}
	}

	return docs, rows.Err()
}

// DeleteConsolidatedLandingsInRange clears all documents with a landed day
// in [start, end], ahead of a batch re-run.
func (r *SQLRepository) DeleteConsolidatedLandingsInRange(ctx context.Context, start, end time.Time) error {
	query := `DELETE FROM consolidated_landings WHERE landed_date >= ? AND landed_date <= ?`
	_, err := r.db.ExecContext(ctx, r.rebind(query), dayKey(start), dayKey(end))
	return err
}

// ListConsolidatedLandings returns every persisted consolidated landing.
func (r *SQLRepository) ListConsolidatedLandings(ctx context.Context) ([]*domain.ConsolidatedLanding, error) {
	query := `
		SELECT pln, landed_date, rss_number, source, items, updated_at
		FROM consolidated_landings
		ORDER BY pln, landed_date
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.ConsolidatedLanding
	for rows.Next() {
		doc, err := scanConsolidated(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func scanConsolidated(scan func(...any) error) (*domain.ConsolidatedLanding, error) {
	var doc domain.ConsolidatedLanding
	var landedDate, source, items string

	if err := scan(&doc.PLN, &landedDate, &doc.RSSNumber, &source, &items, &doc.UpdatedAt); err != nil {
		return nil, err
	}

	date, err := time.ParseInLocation(domain.DateFormat, landedDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("failed to parse landed date %q: %w", landedDate, err)
	}

	doc.Date = date
	doc.Source = domain.LandingSource(source)
	if err := json.Unmarshal([]byte(items), &doc.Items); err != nil {
		return nil, fmt.Errorf("failed to parse consolidated items for %s/%s: %w", doc.PLN, landedDate, err)
	}

	return &doc, nil
}

func referencesDocument(doc *domain.ConsolidatedLanding, documentNumber string) bool {
	for i := range doc.Items {
		for _, u := range doc.Items[i].Usages {
			if u.DocumentNumber == documentNumber {
				return true
			}
		}
	}
	return false
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

// SaveRuleConfig stores an alert rule configuration.
func (r *SQLRepository) SaveRuleConfig(ctx context.Context, rule *domain.RuleConfig) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	bands, _ := json.Marshal(rule.Bands)

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO rule_configs (
			id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetRuleConfig retrieves the latest active version of a rule configuration.
func (r *SQLRepository) GetRuleConfig(ctx context.Context, ruleID string) (*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var cfg domain.RuleConfig
	var bands string
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&cfg.ID, &cfg.Name, &cfg.Description,
		&cfg.Version, &cfg.Expression, &bands, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg.Enabled = enabled == 1
	json.Unmarshal([]byte(bands), &cfg.Bands)

	return &cfg, nil
}

// ListRuleConfigs retrieves all active rule configurations.
func (r *SQLRepository) ListRuleConfigs(ctx context.Context) ([]*domain.RuleConfig, error) {
	query := `
		SELECT id, name, description, version, expression, bands, enabled
		FROM rule_configs
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.RuleConfig
	for rows.Next() {
		var cfg domain.RuleConfig
		var bands string
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description,
			&cfg.Version, &cfg.Expression, &bands, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.Enabled = enabled == 1
		json.Unmarshal([]byte(bands), &cfg.Bands)
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result.WriteByte('$')
			result.WriteString(fmt.Sprintf("%d", n))
			n++
		} else {
			result.WriteByte(query[i])
		}
	}
	return result.String()
}
