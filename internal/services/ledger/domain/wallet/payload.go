package wallet

// CreatePayload captures the payload for wallet.create commands and wallet.created events.
type CreatePayload struct {
	WalletID string `json:"wallet_id,omitempty"`
}

// MovePayload captures deposit/withdraw commands and their initiated and executed events.
type MovePayload struct {
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// TransactionPayload captures execute/complete/cancel commands and the completed event.
type TransactionPayload struct {
	TransactionID string `json:"transaction_id"`
}

// CancelledPayload captures wallet.transaction_cancelled events.
type CancelledPayload struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Kind          Kind   `json:"kind"`
}
