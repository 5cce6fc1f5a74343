package repository

// Schema definitions for the Gannet database.
// Compatible with both SQLite and PostgreSQL.

const schemaLandings = `
CREATE TABLE IF NOT EXISTS landings (
    id TEXT PRIMARY KEY,
    rss_number TEXT NOT NULL,
    landed_at TIMESTAMP NOT NULL,
    landed_date TEXT NOT NULL,
    source TEXT NOT NULL,
    items TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_landings_rss_date ON landings(rss_number, landed_date);
CREATE INDEX IF NOT EXISTS idx_landings_landed_at ON landings(landed_at);
`

const schemaCertificates = `
CREATE TABLE IF NOT EXISTS certificates (
    document_number TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    exporter_account_id TEXT,
    exporter_contact_id TEXT,
    products TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_certificates_status ON certificates(status);
`

// certificate_landings is a side index of the (vessel mark, day) pairs each
// certificate's catch records reference, maintained on every certificate save.
const schemaCertificateLandings = `
CREATE TABLE IF NOT EXISTS certificate_landings (
    document_number TEXT NOT NULL,
    pln TEXT NOT NULL,
    landed_date TEXT NOT NULL,
    PRIMARY KEY (document_number, pln, landed_date)
);

CREATE INDEX IF NOT EXISTS idx_certificate_landings_key ON certificate_landings(pln, landed_date);
`

const schemaPreApprovals = `
CREATE TABLE IF NOT EXISTS pre_approvals (
    document_number TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL
);
`

const schemaConsolidatedLandings = `
CREATE TABLE IF NOT EXISTS consolidated_landings (
    pln TEXT NOT NULL,
    landed_date TEXT NOT NULL,
    rss_number TEXT NOT NULL,
    source TEXT NOT NULL,
    items TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (pln, landed_date)
);

CREATE INDEX IF NOT EXISTS idx_consolidated_landings_rss ON consolidated_landings(rss_number, landed_date);
`

const schemaVessels = `
CREATE TABLE IF NOT EXISTS vessels (
    rss_number TEXT PRIMARY KEY,
    pln TEXT NOT NULL,
    name TEXT,
    licence_valid_from TEXT NOT NULL,
    licence_valid_to TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vessels_pln ON vessels(pln);
`

const schemaVesselsOfInterest = `
CREATE TABLE IF NOT EXISTS vessels_of_interest (
    pln TEXT PRIMARY KEY,
    notes TEXT
);
`

// weightings holds a single live row.
const schemaWeightings = `
CREATE TABLE IF NOT EXISTS weightings (
    id INTEGER PRIMARY KEY,
    vessel REAL NOT NULL,
    species REAL NOT NULL,
    exporter REAL NOT NULL,
    threshold REAL NOT NULL
);
`

const schemaSpeciesAliases = `
CREATE TABLE IF NOT EXISTS species_aliases (
    code TEXT PRIMARY KEY,
    aliases TEXT NOT NULL
);
`

const schemaConversionFactors = `
CREATE TABLE IF NOT EXISTS conversion_factors (
    species TEXT PRIMARY KEY,
    factor REAL NOT NULL,
    risk_score REAL
);
`

const schemaExporterBehaviour = `
CREATE TABLE IF NOT EXISTS exporter_behaviour (
    account_id TEXT NOT NULL DEFAULT '',
    contact_id TEXT NOT NULL DEFAULT '',
    score REAL NOT NULL,
    PRIMARY KEY (account_id, contact_id)
);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLandings,
		schemaCertificates,
		schemaCertificateLandings,
		schemaPreApprovals,
		schemaConsolidatedLandings,
		schemaVessels,
		schemaVesselsOfInterest,
		schemaWeightings,
		schemaSpeciesAliases,
		schemaConversionFactors,
		schemaExporterBehaviour,
		schemaRuleConfigs,
	}
}
