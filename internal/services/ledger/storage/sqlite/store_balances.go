package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

// CreateWalletBalance inserts a zero balance row. Replays of the creating event
// leave the row untouched.
func (s *Store) CreateWalletBalance(ctx context.Context, walletID string, seq uint64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return fmt.Errorf("wallet id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_balances (wallet_id, balance, last_seq, updated_at)
VALUES (?, 0, ?, ?)
ON CONFLICT(wallet_id) DO NOTHING`,
		walletID,
		int64(seq),
		toMillis(at),
	); err != nil {
		return fmt.Errorf("create wallet balance %s: %w", walletID, err)
	}
	return nil
}

// AdjustWalletBalance applies delta once per wallet event. An event at or below
// the row's last applied sequence is skipped, so redelivery is harmless.
func (s *Store) AdjustWalletBalance(ctx context.Context, walletID string, delta int64, seq uint64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.configured(); err != nil {
		return err
	}
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return fmt.Errorf("wallet id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO wallet_balances (wallet_id, balance, last_seq, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(wallet_id) DO UPDATE SET
    balance = wallet_balances.balance + excluded.balance,
    last_seq = excluded.last_seq,
    updated_at = excluded.updated_at
WHERE excluded.last_seq > wallet_balances.last_seq`,
		walletID,
		delta,
		int64(seq),
		toMillis(at),
	); err != nil {
		return fmt.Errorf("adjust wallet balance %s: %w", walletID, err)
	}
	return nil
}

// ListWalletBalancesAbove returns wallets whose settled balance is strictly
// greater than amount, richest first.
func (s *Store) ListWalletBalancesAbove(ctx context.Context, amount int64, limit int) ([]storage.WalletBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.configured(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT wallet_id, balance, last_seq, updated_at
FROM wallet_balances
WHERE balance > ?
ORDER BY balance DESC, wallet_id ASC
LIMIT ?`, amount, limit)
	if err != nil {
		return nil, fmt.Errorf("list wallet balances: %w", err)
	}
	defer rows.Close()

	balances := make([]storage.WalletBalance, 0)
	for rows.Next() {
		var (
			balance   storage.WalletBalance
			lastSeq   int64
			updatedAt int64
		)
		if err := rows.Scan(&balance.WalletID, &balance.Balance, &lastSeq, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet balance: %w", err)
		}
		balance.LastSeq = uint64(lastSeq)
		balance.UpdatedAt = fromMillis(updatedAt)
		balances = append(balances, balance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet balances: %w", err)
	}
	return balances, nil
}
