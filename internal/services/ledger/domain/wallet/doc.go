// Package wallet models one wallet's balance and its in-flight transactions.
//
// A transaction id moves forward only: none -> pending -> executed -> removed, with
// cancel as the pending -> removed escape. Withdrawals reserve funds when initiated;
// deposits only count once executed. Commands that reference an id already past
// their stage decide to a no-op, which keeps the wallet safe under at-least-once
// delivery and saga retries.
package wallet
