package store

import (
	"encoding/json"
	"fmt"
)

// configExtra is the {private_ws, public_ws} shape stored in config.extra,
// kept separate from Config's owner_id which is its own column.
type configExtra struct {
	PrivateWS bool `json:"private_ws"`
	PublicWS  bool `json:"public_ws"`
}

func encodeConfigExtra(c Config) (string, error) {
	raw, err := json.Marshal(configExtra{PrivateWS: c.PrivateWS, PublicWS: c.PublicWS})
	if err != nil {
		return "", fmt.Errorf("store: encode config extra: %w", err)
	}
	return string(raw), nil
}

func decodeConfigExtra(raw string, into *Config) error {
	var e configExtra
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return fmt.Errorf("store: decode config extra: %w", err)
	}
	into.PrivateWS = e.PrivateWS
	into.PublicWS = e.PublicWS
	return nil
}
