package rundb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE run(
			id TEXT PRIMARY KEY,
			created_at INT NOT NULL,
			kind TEXT NOT NULL,
			search_id TEXT NOT NULL,
			formats TEXT NOT NULL,
			seed INT NOT NULL,
			images INT NOT NULL,
			boxes INT NOT NULL,
			max_delta REAL NOT NULL,
			mean_delta REAL NOT NULL,
			config TEXT NOT NULL
		);
		CREATE INDEX idx_run_search_id ON run (search_id);

		CREATE TABLE run_split(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			split TEXT NOT NULL,
			images INT NOT NULL,
			boxes INT NOT NULL
		);
		CREATE INDEX idx_run_split_run_id ON run_split (run_id);

		CREATE TABLE run_box(
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			class_id INT NOT NULL,
			class_name TEXT NOT NULL,
			split TEXT NOT NULL,
			count INT NOT NULL
		);
		CREATE INDEX idx_run_box_run_id ON run_box (run_id);
	`))

	return migs
}
