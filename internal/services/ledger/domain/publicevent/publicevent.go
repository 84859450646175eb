// Package publicevent translates wallet events into the stable shape published
// to external topics.
package publicevent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
)

const (
	TypeWalletCreated    = "wallet-created"
	TypeBalanceIncreased = "balance-increased"
	TypeBalanceDecreased = "balance-decreased"
)

// Body is the public payload for every wallet event type.
type Body struct {
	WalletID string `json:"walletId"`
	Amount   int64  `json:"amount,omitempty"`
}

// Event is a translated wallet event ready for publication.
type Event struct {
	// ID is the source event reference and stays stable across redeliveries.
	ID         string
	Type       string
	OccurredAt time.Time
	Body       Body
}

// Key is the partition key for ordered topics.
func (e Event) Key() string {
	return e.Body.WalletID
}

// MarshalBody encodes the public body.
func (e Event) MarshalBody() ([]byte, error) {
	return json.Marshal(e.Body)
}

// Translate maps a stored wallet event to its public form. Events without a
// public counterpart return ok=false.
func Translate(evt event.Event) (Event, bool, error) {
	if evt.AggregateType != wallet.AggregateType {
		return Event{}, false, nil
	}
	out := Event{
		ID:         evt.Ref(),
		OccurredAt: evt.Timestamp,
		Body:       Body{WalletID: evt.AggregateID},
	}
	switch evt.Type {
	case wallet.EventTypeCreated:
		out.Type = TypeWalletCreated
		return out, true, nil
	case wallet.EventTypeDeposited, wallet.EventTypeWithdrawn:
		var payload wallet.MovePayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return Event{}, false, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		out.Type = TypeBalanceIncreased
		if evt.Type == wallet.EventTypeWithdrawn {
			out.Type = TypeBalanceDecreased
		}
		out.Body.Amount = payload.Amount
		return out, true, nil
	default:
		return Event{}, false, nil
	}
}
