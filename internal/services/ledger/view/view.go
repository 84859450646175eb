// Package view projects settled wallet movements into balance read models.
package view

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/event"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/router"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

const defaultListLimit = 100

// Projector keeps a balance store in step with wallet events. Only executed
// movements count; reservations never reach the view.
type Projector struct {
	Store storage.BalanceStore
}

// Name implements router.Reactor.
func (Projector) Name() string { return "view.balances" }

// EventTypes lists the wallet events the projection folds.
func (Projector) EventTypes() []event.Type {
	return []event.Type{wallet.EventTypeCreated, wallet.EventTypeDeposited, wallet.EventTypeWithdrawn}
}

// Handle applies evt to the balance store.
func (p Projector) Handle(ctx context.Context, evt event.Event) error {
	if evt.Type == wallet.EventTypeCreated {
		return p.Store.CreateWalletBalance(ctx, evt.AggregateID, evt.Seq, evt.Timestamp)
	}
	var payload wallet.MovePayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return router.Permanent(fmt.Errorf("decode %s: %w", evt.Type, err))
	}
	delta := payload.Amount
	switch evt.Type {
	case wallet.EventTypeDeposited:
	case wallet.EventTypeWithdrawn:
		delta = -delta
	default:
		return nil
	}
	return p.Store.AdjustWalletBalance(ctx, evt.AggregateID, delta, evt.Seq, evt.Timestamp)
}

// Balances answers threshold queries over the projection.
type Balances struct {
	Store storage.BalanceStore
}

// HigherThan lists wallets whose settled balance exceeds amount, richest first.
func (b Balances) HigherThan(ctx context.Context, amount int64, limit int) ([]storage.WalletBalance, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return b.Store.ListWalletBalancesAbove(ctx, amount, limit)
}
