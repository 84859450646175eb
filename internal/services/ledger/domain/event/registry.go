package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	coreencoding "github.com/louisbranch/walletsaga/internal/services/ledger/core/encoding"
)

var (
	// ErrTypeRequired indicates a missing event type.
	ErrTypeRequired = errors.New("event type is required")
	// ErrTypeUnknown indicates an unregistered event type.
	ErrTypeUnknown = errors.New("event type is not registered")
	// ErrAggregateTypeRequired indicates a missing aggregate type.
	ErrAggregateTypeRequired = errors.New("aggregate type is required")
	// ErrAggregateTypeMismatch indicates an event addressed to the wrong aggregate kind.
	ErrAggregateTypeMismatch = errors.New("aggregate type does not own event type")
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrActorTypeInvalid indicates an unknown actor type.
	ErrActorTypeInvalid = errors.New("actor type is invalid")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
	// ErrPayloadRejected indicates the payload failed its type-specific validation.
	ErrPayloadRejected = errors.New("payload invalid")
)

// Type identifies the event type string.
type Type string

// ActorType identifies who caused the event.
type ActorType string

const (
	// ActorTypeSystem indicates a system-originated event.
	ActorTypeSystem ActorType = "system"
	// ActorTypeClient indicates an event caused by an external API caller.
	ActorTypeClient ActorType = "client"
	// ActorTypeReactor indicates an event caused by an event reaction.
	ActorTypeReactor ActorType = "reactor"
	// ActorTypeTimer indicates an event caused by a fired durable timer.
	ActorTypeTimer ActorType = "timer"
	// ActorTypeWorkflow indicates an event caused by the workflow orchestrator.
	ActorTypeWorkflow ActorType = "workflow"
)

// Intent declares which consumers see an event.
type Intent string

const (
	// IntentRouteAndReplay events are replayed and delivered to reactors.
	IntentRouteAndReplay Intent = "route_and_replay"
	// IntentReplayOnly events only rebuild aggregate state.
	IntentReplayOnly Intent = "replay_only"
)

// Event is the canonical envelope persisted in a stream.
type Event struct {
	AggregateType  string
	AggregateID    string
	Seq            uint64
	Type           Type
	Timestamp      time.Time
	ActorType      ActorType
	ActorID        string
	RequestID      string
	CorrelationID  string
	CausationID    string
	PayloadJSON    []byte
	Hash           string
	PrevHash       string
	ChainHash      string
	Signature      string
	SignatureKeyID string
}

// StreamKey returns the journal key for the event's stream.
func (e Event) StreamKey() string {
	return StreamKey(e.AggregateType, e.AggregateID)
}

// Ref returns a stable reference to this stored event, used as a causation id.
func (e Event) Ref() string {
	return fmt.Sprintf("%s@%d", e.StreamKey(), e.Seq)
}

// StreamKey joins an aggregate type and id into a single stream key.
func StreamKey(aggregateType, aggregateID string) string {
	return aggregateType + "/" + aggregateID
}

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for an event type.
type Definition struct {
	Type            Type
	AggregateType   string
	Intent          Intent
	ValidatePayload PayloadValidator
}

// Registry stores event definitions and validates events before append.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new event type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	def.AggregateType = strings.TrimSpace(def.AggregateType)
	if def.AggregateType == "" {
		return ErrAggregateTypeRequired
	}
	switch def.Intent {
	case "":
		def.Intent = IntentRouteAndReplay
	case IntentRouteAndReplay, IntentReplayOnly:
	default:
		return fmt.Errorf("event intent is invalid: %s", def.Intent)
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("event type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// ValidateForAppend validates and normalizes an event before persistence.
func (r *Registry) ValidateForAppend(evt Event) (Event, error) {
	if r == nil {
		return Event{}, errors.New("registry is required")
	}
	evt.Type = Type(strings.TrimSpace(string(evt.Type)))
	if evt.Type == "" {
		return Event{}, ErrTypeRequired
	}
	def, ok := r.definitions[evt.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrTypeUnknown, evt.Type)
	}
	evt.AggregateType = strings.TrimSpace(evt.AggregateType)
	if evt.AggregateType == "" {
		evt.AggregateType = def.AggregateType
	}
	if evt.AggregateType != def.AggregateType {
		return Event{}, fmt.Errorf("%w: %s on %s", ErrAggregateTypeMismatch, evt.Type, evt.AggregateType)
	}
	evt.AggregateID = strings.TrimSpace(evt.AggregateID)
	if evt.AggregateID == "" {
		return Event{}, ErrAggregateIDRequired
	}

	evt.ActorType = ActorType(strings.TrimSpace(string(evt.ActorType)))
	if evt.ActorType == "" {
		evt.ActorType = ActorTypeSystem
	}
	if !validActorType(evt.ActorType) {
		return Event{}, ErrActorTypeInvalid
	}
	evt.ActorID = strings.TrimSpace(evt.ActorID)

	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if !json.Valid(evt.PayloadJSON) {
		return Event{}, ErrPayloadInvalid
	}
	canonical, err := coreencoding.CanonicalJSON(json.RawMessage(evt.PayloadJSON))
	if err != nil {
		return Event{}, fmt.Errorf("canonical payload json: %w", err)
	}
	evt.PayloadJSON = canonical
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(json.RawMessage(evt.PayloadJSON)); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrPayloadRejected, err)
		}
	}
	return evt, nil
}

// Definition returns the event definition for a given type.
func (r *Registry) Definition(eventType Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[Type(strings.TrimSpace(string(eventType)))]
	return def, ok
}

// ShouldRoute reports whether reactors receive events of this type.
// Unknown types are routed so nothing is silently dropped.
func (r *Registry) ShouldRoute(eventType Type) bool {
	def, ok := r.Definition(eventType)
	if !ok {
		return true
	}
	return def.Intent != IntentReplayOnly
}

// ListDefinitions returns a stable, sorted snapshot of registered definitions.
func (r *Registry) ListDefinitions() []Definition {
	if r == nil || len(r.definitions) == 0 {
		return nil
	}
	definitions := make([]Definition, 0, len(r.definitions))
	for _, definition := range r.definitions {
		definitions = append(definitions, definition)
	}
	sort.Slice(definitions, func(i, j int) bool {
		return string(definitions[i].Type) < string(definitions[j].Type)
	})
	return definitions
}

func validActorType(actorType ActorType) bool {
	switch actorType {
	case ActorTypeSystem, ActorTypeClient, ActorTypeReactor, ActorTypeTimer, ActorTypeWorkflow:
		return true
	default:
		return false
	}
}
