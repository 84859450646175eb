package integrity

import (
	"errors"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
)

// Seal fills evt's hash, chain link and signature so it follows prevChainHash
// in streamKey. evt.Seq must already be assigned.
func (k *Keyring) Seal(streamKey string, evt event.Event, prevChainHash string) (event.Event, error) {
	hash, err := event.EventHash(evt)
	if err != nil {
		return event.Event{}, fmt.Errorf("event hash: %w", err)
	}
	if hash == "" {
		return event.Event{}, errors.New("event hash is empty")
	}
	evt.Hash = hash
	chainHash, err := event.ChainHash(evt, prevChainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("chain hash: %w", err)
	}
	sig, err := k.Sign(streamKey, chainHash)
	if err != nil {
		return event.Event{}, fmt.Errorf("sign: %w", err)
	}
	evt.PrevHash = prevChainHash
	evt.ChainHash = chainHash
	evt.Signature = sig.Value
	evt.SignatureKeyID = sig.KeyID
	return evt, nil
}

// Check recomputes evt's hash and chain link from prevChainHash and verifies
// its signature.
func (k *Keyring) Check(streamKey string, evt event.Event, prevChainHash string) error {
	if evt.PrevHash != prevChainHash {
		return fmt.Errorf("prev hash mismatch stream=%s seq=%d", streamKey, evt.Seq)
	}
	hash, err := event.EventHash(evt)
	if err != nil {
		return fmt.Errorf("compute event hash stream=%s seq=%d: %w", streamKey, evt.Seq, err)
	}
	if hash != evt.Hash {
		return fmt.Errorf("event hash mismatch stream=%s seq=%d", streamKey, evt.Seq)
	}
	chainHash, err := event.ChainHash(evt, prevChainHash)
	if err != nil {
		return fmt.Errorf("compute chain hash stream=%s seq=%d: %w", streamKey, evt.Seq, err)
	}
	if chainHash != evt.ChainHash {
		return fmt.Errorf("chain hash mismatch stream=%s seq=%d", streamKey, evt.Seq)
	}
	if err := k.Verify(streamKey, chainHash, Signature{Value: evt.Signature, KeyID: evt.SignatureKeyID}); err != nil {
		return fmt.Errorf("stream=%s seq=%d: %w", streamKey, evt.Seq, err)
	}
	return nil
}
