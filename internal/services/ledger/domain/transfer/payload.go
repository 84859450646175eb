package transfer

// InitPayload captures the payload for transfer.init commands and transfer.created events.
type InitPayload struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// ParticipantPayload captures participant join/execute commands and events.
type ParticipantPayload struct {
	WalletID string `json:"wallet_id"`
}

// ParticipantsPayload carries the participant set on initiated, completed and
// cancelled events.
type ParticipantsPayload struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// CancelPayload captures the payload for transfer.cancel commands.
type CancelPayload struct {
	Reason string `json:"reason,omitempty"`
}
