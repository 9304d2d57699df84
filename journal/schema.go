package journal

const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	v INTEGER NOT NULL,
	date TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	side TEXT NOT NULL,
	count INTEGER NOT NULL,
	price_cents INTEGER NOT NULL,
	dry_run BOOLEAN NOT NULL,
	result TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	response TEXT,
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	v INTEGER NOT NULL,
	date TEXT NOT NULL,
	session TEXT NOT NULL DEFAULT '',
	strategy TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT '',
	station TEXT NOT NULL,
	contract TEXT NOT NULL,
	side TEXT NOT NULL,
	qty INTEGER NOT NULL,
	price REAL NOT NULL,
	expected_edge REAL NOT NULL DEFAULT 0,
	market_sigma REAL NOT NULL DEFAULT 0,
	our_sigma REAL NOT NULL DEFAULT 0,
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	v INTEGER NOT NULL,
	date TEXT NOT NULL,
	session TEXT NOT NULL DEFAULT '',
	station TEXT NOT NULL,
	contract TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	guards TEXT NOT NULL,
	net_edge REAL NOT NULL,
	timestamp DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	v INTEGER NOT NULL,
	date TEXT NOT NULL,
	station TEXT NOT NULL,
	contract TEXT NOT NULL DEFAULT '',
	actual REAL NOT NULL,
	forecast_error REAL,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_date ON trades(date);
CREATE INDEX IF NOT EXISTS idx_decisions_date ON decisions(date);
`
