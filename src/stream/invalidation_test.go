package stream

import (
	"sort"
	"strings"
	"sync"
	"testing"

	"trading-console/src/events"
	"trading-console/src/logger"
)

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(key string) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
}

func (r *recordingInvalidator) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.keys
	r.keys = nil
	sort.Strings(out)
	return out
}

type panickingInvalidator struct{}

func (panickingInvalidator) Invalidate(string) { panic("cache offline") }

func TestKeysForIsTotal(t *testing.T) {
	want := map[events.Kind]string{
		events.KindCandleTick:       "",
		events.KindSignalCreated:    "signals",
		events.KindSignalUpdated:    "signals",
		events.KindPositionsChanged: "positions",
		events.KindOrdersChanged:    "orders",
		events.KindTradeFilled:      "positions,trades",
		events.KindBotStatus:        "",
	}

	for _, kind := range events.Kinds() {
		keys := KeysFor(kind)
		sort.Strings(keys)
		if got := strings.Join(keys, ","); got != want[kind] {
			t.Errorf("KeysFor(%s) = %q, want %q", kind, got, want[kind])
		}
	}
}

func TestKeysForUnknownKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("KeysFor(unknown) did not panic")
		}
	}()
	KeysFor(events.Kind("heartbeat"))
}

func TestBridgeApply(t *testing.T) {
	rec := &recordingInvalidator{}
	bridge := NewBridge(logger.NewNop(), panickingInvalidator{}, rec)

	bridge.Apply(events.Envelope{Kind: events.KindSignalUpdated})
	if got := rec.take(); strings.Join(got, ",") != "signals" {
		t.Errorf("signal_updated invalidated %v, want [signals]", got)
	}

	bridge.Apply(events.Envelope{Kind: events.KindTradeFilled})
	if got := rec.take(); strings.Join(got, ",") != "positions,trades" {
		t.Errorf("trade_filled invalidated %v, want [positions trades]", got)
	}

	bridge.Apply(events.Envelope{Kind: events.KindCandleTick})
	if got := rec.take(); len(got) != 0 {
		t.Errorf("kline invalidated %v, want nothing", got)
	}

	late := &recordingInvalidator{}
	bridge.AddTarget(late)
	bridge.Apply(events.Envelope{Kind: events.KindOrdersChanged})
	if got := late.take(); strings.Join(got, ",") != "orders" {
		t.Errorf("late target got %v, want [orders]", got)
	}
}
