// Package hmackey generates event-signing keys for the ledger keyring.
package hmackey

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage/integrity"
)

const minBytes = 16

// Config holds configuration for HMAC key generation.
type Config struct {
	Bytes int
	// KeyID emits a rotation entry for WALLETSAGA_EVENT_HMAC_KEYS when set.
	KeyID string
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes (default: 32)")
	fs.StringVar(&cfg.KeyID, "key-id", "", "emit a keyring rotation entry under this key id")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run generates the key and writes it to out as environment assignments.
func Run(cfg Config, out io.Writer, reader io.Reader) error {
	if cfg.Bytes < minBytes {
		return fmt.Errorf("bytes must be at least %d", minBytes)
	}
	if out == nil {
		return errors.New("output is required")
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if strings.ContainsAny(keyID, "=,") {
		return errors.New("key id must not contain '=' or ','")
	}
	if reader == nil {
		reader = rand.Reader
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if keyID == "" {
		_, err := fmt.Fprintf(out, "WALLETSAGA_EVENT_HMAC_KEY=%s\n", secret)
		return err
	}
	if _, err := integrity.NewKeyring(map[string][]byte{keyID: []byte(secret)}, keyID); err != nil {
		return fmt.Errorf("check keyring: %w", err)
	}
	_, err := fmt.Fprintf(out, "WALLETSAGA_EVENT_HMAC_KEY_ID=%s\n# append to WALLETSAGA_EVENT_HMAC_KEYS (comma separated)\n%s=%s\n", keyID, keyID, secret)
	return err
}
