package transfer

import "sort"

// Status is the saga lifecycle position.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInitiated Status = "initiated"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Terminal reports whether the saga has resolved.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Participant tracks one wallet's progress through the saga.
type Participant struct {
	Joined   bool `json:"joined"`
	Executed bool `json:"executed"`
}

// State captures replayed saga state.
type State struct {
	Created      bool                   `json:"created"`
	TransferID   string                 `json:"transfer_id"`
	Status       Status                 `json:"status"`
	Participants map[string]Participant `json:"participants,omitempty"`
}

// ParticipantIDs returns participant wallet ids in sorted order.
func (s State) ParticipantIDs() []string {
	ids := make([]string, 0, len(s.Participants))
	for id := range s.Participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s State) allJoined() bool {
	for _, p := range s.Participants {
		if !p.Joined {
			return false
		}
	}
	return len(s.Participants) > 0
}

func (s State) allExecuted() bool {
	for _, p := range s.Participants {
		if !p.Executed {
			return false
		}
	}
	return len(s.Participants) > 0
}

// with returns a copy of s with walletID set to p.
func (s State) with(walletID string, p Participant) State {
	next := s.clone()
	next.Participants[walletID] = p
	return next
}

func (s State) clone() State {
	participants := make(map[string]Participant, len(s.Participants))
	for id, p := range s.Participants {
		participants[id] = p
	}
	s.Participants = participants
	return s
}
