package catalog

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "create runs table",
		sql: `
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				started_at TEXT NOT NULL,
				finished_at TEXT,
				pages_fetched INTEGER NOT NULL DEFAULT 0,
				listings_found INTEGER NOT NULL DEFAULT 0,
				downloaded INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
		`,
	},
	{
		name: "create maps table",
		sql: `
			CREATE TABLE IF NOT EXISTS maps (
				workshop_id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				gameplay_type INTEGER NOT NULL,
				difficulty INTEGER NOT NULL,
				star_rating INTEGER NOT NULL,
				path TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				updated_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_maps_run ON maps(run_id);
		`,
	},
}
