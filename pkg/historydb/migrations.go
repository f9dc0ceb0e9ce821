package historydb

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
		CREATE TABLE prediction(
			id INTEGER PRIMARY KEY,
			created_at INT NOT NULL,
			model_path TEXT NOT NULL,
			secondary_model_path TEXT,
			source_path TEXT NOT NULL,
			source_type TEXT NOT NULL,
			result_path TEXT,
			params TEXT,
			success INT NOT NULL,
			error TEXT,
			inference_ms INT NOT NULL,
			num_detections INT NOT NULL,
			num_warnings INT NOT NULL
		);
		CREATE INDEX idx_prediction_created_at ON prediction (created_at);
		CREATE INDEX idx_prediction_source_type ON prediction (source_type);
	`))

	return migs
}
