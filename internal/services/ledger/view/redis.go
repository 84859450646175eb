package view

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "walletsaga"
	maxWatchRetries  = 16
)

// RedisStore keeps balances in a sorted set scored by balance, with a hash of
// the last applied event sequence per wallet.
type RedisStore struct {
	client     redis.UniversalClient
	balanceKey string
	seqKey     string
	updatedKey string
}

var _ storage.BalanceStore = (*RedisStore)(nil)

// NewRedisStore builds a store under keyPrefix.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{
		client:     client,
		balanceKey: keyPrefix + ":wallet-balances",
		seqKey:     keyPrefix + ":wallet-balance-seq",
		updatedKey: keyPrefix + ":wallet-balance-updated",
	}
}

// CreateWalletBalance adds walletID with a zero balance if absent.
func (s *RedisStore) CreateWalletBalance(ctx context.Context, walletID string, seq uint64, at time.Time) error {
	return s.apply(ctx, walletID, seq, at, func(pipe redis.Pipeliner) {
		pipe.ZAddNX(ctx, s.balanceKey, redis.Z{Score: 0, Member: walletID})
	})
}

// AdjustWalletBalance adds delta to walletID unless seq was already applied.
func (s *RedisStore) AdjustWalletBalance(ctx context.Context, walletID string, delta int64, seq uint64, at time.Time) error {
	return s.apply(ctx, walletID, seq, at, func(pipe redis.Pipeliner) {
		pipe.ZIncrBy(ctx, s.balanceKey, float64(delta), walletID)
	})
}

// ListWalletBalancesAbove returns wallets with balance strictly above amount.
func (s *RedisStore) ListWalletBalancesAbove(ctx context.Context, amount int64, limit int) ([]storage.WalletBalance, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	members, err := s.client.ZRevRangeByScoreWithScores(ctx, s.balanceKey, &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(amount, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list balances above %d: %w", amount, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	for i, member := range members {
		ids[i] = fmt.Sprint(member.Member)
	}
	seqs, err := s.client.HMGet(ctx, s.seqKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load balance seqs: %w", err)
	}
	updated, err := s.client.HMGet(ctx, s.updatedKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load balance timestamps: %w", err)
	}

	balances := make([]storage.WalletBalance, len(members))
	for i, member := range members {
		balances[i] = storage.WalletBalance{
			WalletID: ids[i],
			Balance:  int64(member.Score),
			LastSeq:  uint64(parseInt(seqs[i])),
		}
		if millis := parseInt(updated[i]); millis > 0 {
			balances[i].UpdatedAt = time.UnixMilli(millis).UTC()
		}
	}
	return balances, nil
}

// apply runs write under an optimistic watch on the sequence hash so a
// redelivered event is applied once.
func (s *RedisStore) apply(ctx context.Context, walletID string, seq uint64, at time.Time, write func(redis.Pipeliner)) error {
	txf := func(tx *redis.Tx) error {
		last, err := tx.HGet(ctx, s.seqKey, walletID).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && seq <= last {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe)
			pipe.HSet(ctx, s.seqKey, walletID, seq)
			pipe.HSet(ctx, s.updatedKey, walletID, at.UTC().UnixMilli())
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, s.seqKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("apply balance %s@%d: %w", walletID, seq, err)
		}
		return nil
	}
	return fmt.Errorf("apply balance %s@%d: too many concurrent updates", walletID, seq)
}

func parseInt(value any) int64 {
	text, ok := value.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(text, 10, 64)
	return n
}
