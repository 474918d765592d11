package store

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Open selects a backend the way the teacher's InitCaches selects Redis over
// memory: if redisURL is non-empty, use Redis; otherwise open SQLite at
// sqlitePath. A Redis connection failure is fatal here rather than falling
// back silently — SPEC_FULL §3 marks Store-open failures as fatal, and a
// silent downgrade from Redis to SQLite would split a multi-instance
// deployment's view of relay/config state.
func Open(redisURL, sqlitePath string, logger zerolog.Logger) (Store, error) {
	if redisURL != "" {
		logger.Info().Msg("opening redis store")
		s, err := OpenRedis(redisURL)
		if err != nil {
			return nil, fmt.Errorf("store: open redis backend: %w", err)
		}
		return s, nil
	}

	logger.Info().Str("path", sqlitePath).Msg("opening sqlite store")
	s, err := OpenSQLite(sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite backend: %w", err)
	}
	return s, nil
}
