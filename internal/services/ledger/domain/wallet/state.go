package wallet

import "sort"

// Kind distinguishes deposit from withdraw transactions.
type Kind string

const (
	// KindDeposit credits the wallet when executed.
	KindDeposit Kind = "deposit"
	// KindWithdraw debits the wallet when initiated.
	KindWithdraw Kind = "withdraw"
)

// Transaction is one pending funds movement.
type Transaction struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Kind          Kind   `json:"kind"`
}

// State captures replayed wallet state.
type State struct {
	Created  bool                   `json:"created"`
	WalletID string                 `json:"wallet_id"`
	Balance  int64                  `json:"balance"`
	Pending  map[string]Transaction `json:"pending,omitempty"`
	Executed map[string]bool        `json:"executed,omitempty"`
}

// IsPending reports whether txID is reserved but not executed.
func (s State) IsPending(txID string) bool {
	_, ok := s.Pending[txID]
	return ok
}

// IsExecuted reports whether txID was applied but not completed.
func (s State) IsExecuted(txID string) bool {
	return s.Executed[txID]
}

// AlreadySeen reports whether txID is still tracked by the wallet.
func (s State) AlreadySeen(txID string) bool {
	return s.IsPending(txID) || s.IsExecuted(txID)
}

// ReservedFunds sums pending withdrawals.
func (s State) ReservedFunds() int64 {
	var reserved int64
	for _, tx := range s.Pending {
		if tx.Kind == KindWithdraw {
			reserved += tx.Amount
		}
	}
	return reserved
}

// PendingTransactions returns pending transactions ordered by id.
func (s State) PendingTransactions() []Transaction {
	out := make([]Transaction, 0, len(s.Pending))
	for _, tx := range s.Pending {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

// ExecutedTransactionIDs returns executed ids in sorted order.
func (s State) ExecutedTransactionIDs() []string {
	out := make([]string, 0, len(s.Executed))
	for id := range s.Executed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s State) clone() State {
	pending := make(map[string]Transaction, len(s.Pending))
	for id, tx := range s.Pending {
		pending[id] = tx
	}
	executed := make(map[string]bool, len(s.Executed))
	for id := range s.Executed {
		executed[id] = true
	}
	s.Pending = pending
	s.Executed = executed
	return s
}
