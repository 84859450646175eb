package event

import (
	"testing"
	"time"
)

func TestEventHash_DeterministicAndSensitiveToPayload(t *testing.T) {
	base := Event{
		AggregateType: "wallet",
		AggregateID:   "w-1",
		Seq:           1,
		Type:          Type("wallet.created"),
		Timestamp:     time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		ActorType:     ActorTypeSystem,
		PayloadJSON:   []byte(`{}`),
	}
	first, err := EventHash(base)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := EventHash(base)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first != second {
		t.Fatalf("hash not deterministic: %s != %s", first, second)
	}

	changed := base
	changed.PayloadJSON = []byte(`{"amount":1}`)
	third, err := EventHash(changed)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if third == first {
		t.Fatal("expected payload change to alter hash")
	}
}

func TestChainHash_DependsOnPrevHash(t *testing.T) {
	evt := Event{
		AggregateType: "wallet",
		AggregateID:   "w-1",
		Seq:           2,
		Type:          Type("wallet.created"),
		Timestamp:     time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
	}
	a, err := ChainHash(evt, "aaa")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	b, err := ChainHash(evt, "bbb")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	if a == b {
		t.Fatal("expected different chain hashes for different predecessors")
	}
}

func TestEventRef(t *testing.T) {
	evt := Event{AggregateType: "transfer", AggregateID: "m:t1", Seq: 3}
	if got := evt.Ref(); got != "transfer/m:t1@3" {
		t.Fatalf("ref = %q", got)
	}
}
