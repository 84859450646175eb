package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	if err := registry.Register(Definition{
		Type:          Type("wallet.created"),
		AggregateType: "wallet",
	}); err != nil {
		t.Fatalf("register type: %v", err)
	}
	return registry
}

func TestRegistryValidateForAppend_CanonicalizesPayloadJSON(t *testing.T) {
	registry := newTestRegistry(t)
	evt, err := registry.ValidateForAppend(Event{
		AggregateID: "w-1",
		Type:        Type("wallet.created"),
		Timestamp:   time.Unix(0, 0).UTC(),
		PayloadJSON: []byte(`{ "b": 1, "a": 2 }`),
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if string(evt.PayloadJSON) != `{"a":2,"b":1}` {
		t.Fatalf("payload = %s, want canonical", evt.PayloadJSON)
	}
	if evt.AggregateType != "wallet" {
		t.Fatalf("aggregate type = %q, want wallet", evt.AggregateType)
	}
	if evt.ActorType != ActorTypeSystem {
		t.Fatalf("actor type = %q, want %q", evt.ActorType, ActorTypeSystem)
	}
}

func TestRegistryValidateForAppend_UnknownType(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.ValidateForAppend(Event{AggregateID: "w-1", Type: Type("wallet.unknown")})
	if !errors.Is(err, ErrTypeUnknown) {
		t.Fatalf("expected ErrTypeUnknown, got %v", err)
	}
}

func TestRegistryValidateForAppend_AggregateTypeMismatch(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		AggregateType: "transfer",
		AggregateID:   "m:t1",
		Type:          Type("wallet.created"),
	})
	if !errors.Is(err, ErrAggregateTypeMismatch) {
		t.Fatalf("expected ErrAggregateTypeMismatch, got %v", err)
	}
}

func TestRegistryValidateForAppend_RequiresAggregateID(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.ValidateForAppend(Event{AggregateID: "  ", Type: Type("wallet.created")})
	if !errors.Is(err, ErrAggregateIDRequired) {
		t.Fatalf("expected ErrAggregateIDRequired, got %v", err)
	}
}

func TestRegistryValidateForAppend_InvalidActorType(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		AggregateID: "w-1",
		Type:        Type("wallet.created"),
		ActorType:   ActorType("robot"),
	})
	if !errors.Is(err, ErrActorTypeInvalid) {
		t.Fatalf("expected ErrActorTypeInvalid, got %v", err)
	}
}

func TestRegistryValidateForAppend_InvalidPayloadJSON(t *testing.T) {
	registry := newTestRegistry(t)
	_, err := registry.ValidateForAppend(Event{
		AggregateID: "w-1",
		Type:        Type("wallet.created"),
		PayloadJSON: []byte(`{"broken"`),
	})
	if !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid, got %v", err)
	}
}

func TestRegistryValidateForAppend_PayloadValidatorUsesCanonicalJSON(t *testing.T) {
	registry := NewRegistry()
	var seen string
	if err := registry.Register(Definition{
		Type:          Type("wallet.deposited"),
		AggregateType: "wallet",
		ValidatePayload: func(raw json.RawMessage) error {
			seen = string(raw)
			return nil
		},
	}); err != nil {
		t.Fatalf("register type: %v", err)
	}
	if _, err := registry.ValidateForAppend(Event{
		AggregateID: "w-1",
		Type:        Type("wallet.deposited"),
		PayloadJSON: []byte(`{"transaction_id":"m:t1", "amount":10}`),
	}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if seen != `{"amount":10,"transaction_id":"m:t1"}` {
		t.Fatalf("validator saw %s", seen)
	}
}

func TestRegistryRegister_DefaultsIntentToRouteAndReplay(t *testing.T) {
	registry := newTestRegistry(t)
	definitions := registry.ListDefinitions()
	if len(definitions) != 1 {
		t.Fatalf("definitions = %d, want 1", len(definitions))
	}
	if definitions[0].Intent != IntentRouteAndReplay {
		t.Fatalf("intent = %s, want %s", definitions[0].Intent, IntentRouteAndReplay)
	}
}

func TestRegistryRegister_RejectsDuplicatesAndInvalidIntent(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.Register(Definition{Type: Type("wallet.created"), AggregateType: "wallet"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if err := registry.Register(Definition{Type: Type("wallet.other"), AggregateType: "wallet", Intent: Intent("nope")}); err == nil {
		t.Fatal("expected invalid intent error")
	}
	if err := registry.Register(Definition{Type: Type("wallet.other")}); !errors.Is(err, ErrAggregateTypeRequired) {
		t.Fatalf("expected ErrAggregateTypeRequired, got %v", err)
	}
}

func TestRegistryShouldRoute(t *testing.T) {
	registry := newTestRegistry(t)
	if err := registry.Register(Definition{
		Type:          Type("workflow.step_failed"),
		AggregateType: "workflow",
		Intent:        IntentReplayOnly,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !registry.ShouldRoute(Type("wallet.created")) {
		t.Fatal("expected wallet.created to route")
	}
	if registry.ShouldRoute(Type("workflow.step_failed")) {
		t.Fatal("expected replay-only event not to route")
	}
	if !registry.ShouldRoute(Type("unknown.type")) {
		t.Fatal("expected unknown types to route")
	}
}
