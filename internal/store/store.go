// Package store implements the Config & Storage Adapter: persistence for
// configured relays and the Nostr-domain Config{private_ws, public_ws},
// behind two interchangeable backends selected the way the teacher's
// InitCaches picks Redis over an in-memory default when REDIS_URL is set.
// Grounded on the original crud.py/migrations.py for schema and on the
// teacher's cache.go/cache_redis.go for the backend-selection idiom.
package store

import "context"

// Relay is the persisted identity of a configured relay.
type Relay struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// Config is the Nostr-domain gating config for the inbound websocket
// endpoint, distinct from the process-level AppConfig.
type Config struct {
	OwnerID   string `json:"owner_id"`
	PrivateWS bool   `json:"private_ws"`
	PublicWS  bool   `json:"public_ws"`
}

// DefaultOwnerID matches the original service's single-tenant "admin" owner.
const DefaultOwnerID = "admin"

// Store is the persistence contract SPEC_FULL §6 names. Both backends
// (SQLite, Redis) implement it identically from the caller's perspective.
type Store interface {
	LoadRelays(ctx context.Context) ([]Relay, error)
	SaveRelay(ctx context.Context, r Relay) error
	DeleteRelay(ctx context.Context, url string) error

	LoadConfig(ctx context.Context, ownerID string) (Config, error)
	SaveConfig(ctx context.Context, c Config) error

	Close() error
}
