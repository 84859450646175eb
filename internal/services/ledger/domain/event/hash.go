package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// hashEnvelope lists the fields covered by an event hash. Integrity fields are
// excluded so the hash can be computed before they are assigned.
type hashEnvelope struct {
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Seq           uint64          `json:"seq"`
	Type          string          `json:"type"`
	Timestamp     string          `json:"timestamp"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id"`
	RequestID     string          `json:"request_id"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	Payload       json.RawMessage `json:"payload"`
}

type chainEnvelope struct {
	PrevHash  string `json:"prev_hash"`
	EventHash string `json:"event_hash"`
	Seq       uint64 `json:"seq"`
}

// EventHash computes the content hash for a single event.
func EventHash(evt Event) (string, error) {
	payload := evt.PayloadJSON
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return "", ErrPayloadInvalid
	}
	envelope := hashEnvelope{
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		Seq:           evt.Seq,
		Type:          string(evt.Type),
		Timestamp:     evt.Timestamp.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano),
		ActorType:     string(evt.ActorType),
		ActorID:       evt.ActorID,
		RequestID:     evt.RequestID,
		CorrelationID: evt.CorrelationID,
		CausationID:   evt.CausationID,
		Payload:       json.RawMessage(payload),
	}
	return sha256JSON(envelope)
}

// ChainHash computes the hash that links an event to its predecessor.
func ChainHash(evt Event, prevHash string) (string, error) {
	eventHash := strings.TrimSpace(evt.Hash)
	if eventHash == "" {
		computed, err := EventHash(evt)
		if err != nil {
			return "", err
		}
		eventHash = computed
	}
	return sha256JSON(chainEnvelope{PrevHash: prevHash, EventHash: eventHash, Seq: evt.Seq})
}

func sha256JSON(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode hash envelope: %w", err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
