package recorder

import (
	"context"

	"BasketPilot/internal/logger"
)

// Open picks the backend: Postgres when postgresURL is set, otherwise SQLite
// when sqlitePath is set, otherwise a no-op recorder.
func Open(ctx context.Context, postgresURL, sqlitePath string, log logger.Logger) (Recorder, error) {
	switch {
	case postgresURL != "":
		return NewPostgresRecorder(ctx, postgresURL, log)
	case sqlitePath != "":
		return NewSQLiteRecorder(sqlitePath, log)
	default:
		return NewNoopRecorder(), nil
	}
}
