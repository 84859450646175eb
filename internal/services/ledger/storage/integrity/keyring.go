package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSignatureMismatch reports a chain hash whose signature does not verify.
var ErrSignatureMismatch = errors.New("signature mismatch")

// Signature is an HMAC over one chain hash plus the id of the key that made it.
type Signature struct {
	Value string
	KeyID string
}

// Keyring holds root HMAC keys by id and the id new events are signed with.
// Retired ids stay in the ring so older events keep verifying.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring validates keys and the active id.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, errors.New("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, errors.New("active hmac key id is required")
	}
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) == 0 {
			return nil, fmt.Errorf("hmac key %q is empty", id)
		}
		copied[id] = append([]byte(nil), key...)
	}
	if _, ok := copied[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id %q is not configured", activeKeyID)
	}
	return &Keyring{keys: copied, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the id used for new signatures.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// KeyIDs lists every configured key id in order.
func (k *Keyring) KeyIDs() []string {
	if k == nil {
		return nil
	}
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sign signs chainHash for streamKey with the active key.
func (k *Keyring) Sign(streamKey, chainHash string) (Signature, error) {
	if k == nil {
		return Signature{}, errors.New("hmac keyring is not configured")
	}
	value, err := k.mac(k.activeKeyID, streamKey, chainHash)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Value: value, KeyID: k.activeKeyID}, nil
}

// Verify checks sig against chainHash for streamKey using the key sig names.
func (k *Keyring) Verify(streamKey, chainHash string, sig Signature) error {
	if k == nil {
		return errors.New("hmac keyring is not configured")
	}
	keyID := strings.TrimSpace(sig.KeyID)
	if keyID == "" {
		return errors.New("signature key id is required")
	}
	expected, err := k.mac(keyID, streamKey, chainHash)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrSignatureMismatch
	}
	return nil
}

// mac derives a per-stream key so a signature cannot be replayed onto
// another stream.
func (k *Keyring) mac(keyID, streamKey, chainHash string) (string, error) {
	rootKey, ok := k.keys[keyID]
	if !ok {
		return "", fmt.Errorf("hmac key id %q is unknown", keyID)
	}
	streamKey = strings.TrimSpace(streamKey)
	if streamKey == "" {
		return "", errors.New("stream key is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "stream:"+streamKey, 32)
	if err != nil {
		return "", fmt.Errorf("derive stream key: %w", err)
	}
	h := hmac.New(sha256.New, key)
	_, _ = h.Write([]byte(chainHash))
	return hex.EncodeToString(h.Sum(nil)), nil
}
