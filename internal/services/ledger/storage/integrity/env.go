package integrity

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	envHMACKeys  = "WALLETSAGA_EVENT_HMAC_KEYS"
	envHMACKey   = "WALLETSAGA_EVENT_HMAC_KEY"
	envHMACKeyID = "WALLETSAGA_EVENT_HMAC_KEY_ID"
	defaultKeyID = "v1"
)

type keyringEnv struct {
	Keys  map[string]string `env:"WALLETSAGA_EVENT_HMAC_KEYS" envSeparator:"," envKeyValSeparator:"="`
	Key   string            `env:"WALLETSAGA_EVENT_HMAC_KEY"`
	KeyID string            `env:"WALLETSAGA_EVENT_HMAC_KEY_ID" envDefault:"v1"`
}

// KeyringFromEnv loads the event-signing keyring.
//
// WALLETSAGA_EVENT_HMAC_KEYS takes a comma separated id=secret list for
// rotation; otherwise WALLETSAGA_EVENT_HMAC_KEY supplies a single key under the
// active id from WALLETSAGA_EVENT_HMAC_KEY_ID.
func KeyringFromEnv() (*Keyring, error) {
	var cfg keyringEnv
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", envHMACKeys, err)
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		keyID = defaultKeyID
	}

	if len(cfg.Keys) == 0 {
		raw := strings.TrimSpace(cfg.Key)
		if raw == "" {
			return nil, fmt.Errorf("%s is required", envHMACKey)
		}
		return NewKeyring(map[string][]byte{keyID: []byte(raw)}, keyID)
	}

	keys := make(map[string][]byte, len(cfg.Keys))
	for id, value := range cfg.Keys {
		id = strings.TrimSpace(id)
		value = strings.TrimSpace(value)
		if id == "" || value == "" {
			return nil, fmt.Errorf("invalid %s entry %q", envHMACKeys, id)
		}
		keys[id] = []byte(value)
	}
	return NewKeyring(keys, keyID)
}
