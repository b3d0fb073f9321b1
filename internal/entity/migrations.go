package entity

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	created_ns INTEGER NOT NULL,
	updated_ns INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_kind_created ON records(kind, created_ns);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_records_email_to
	ON records(kind, json_extract(data, '$.to_address'));

CREATE INDEX IF NOT EXISTS idx_records_email_from
	ON records(kind, json_extract(data, '$.from_address'));

CREATE INDEX IF NOT EXISTS idx_records_owner
	ON records(kind, json_extract(data, '$.owner_address'));

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
