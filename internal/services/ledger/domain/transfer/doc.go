// Package transfer models the choreography saga that moves funds between wallets.
//
// A saga is created with a fixed participant set and advances only through
// reactions: each participant joins when its wallet reserves the transaction and
// executes when its wallet applies it. The last join emits transfer.initiated and
// the last execution emits transfer.completed, each in the same batch as the
// participant event so reactors never observe one without the other. Cancel is
// only effective while the saga is still pending.
package transfer
