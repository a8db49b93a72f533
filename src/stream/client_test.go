package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-console/src/events"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
)

// fakeSource records its lifecycle and exposes the sink it was started with
type fakeSource struct {
	name         string
	readyOnStart bool
	startErr     error

	mu      sync.Mutex
	sink    interfaces.ISourceSink
	stopped bool
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Start(ctx context.Context, sink interfaces.ISourceSink) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
	if f.readyOnStart {
		sink.Ready()
	}
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) Sink() interfaces.ISourceSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

func (f *fakeSource) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// fakeFactory hands out a new fakeSource per connection attempt
type fakeFactory struct {
	mu      sync.Mutex
	sources []*fakeSource
	ready   bool
	calls   atomic.Int32
}

func (ff *fakeFactory) build(demo bool) interfaces.IStreamSource {
	ff.calls.Add(1)
	name := "live"
	if demo {
		name = "synthetic"
	}
	src := &fakeSource{name: name, readyOnStart: demo || ff.ready}
	ff.mu.Lock()
	ff.sources = append(ff.sources, src)
	ff.mu.Unlock()
	return src
}

func (ff *fakeFactory) last() *fakeSource {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.sources[len(ff.sources)-1]
}

func newTestClient(demo bool, delay time.Duration, bridge *Bridge) (*Client, *fakeFactory) {
	cfg := &models.MConfig{}
	cfg.Stream.DemoMode = demo
	cfg.Stream.ReconnectDelayMs = int(delay / time.Millisecond)
	ff := &fakeFactory{}
	return NewClient(cfg, logger.NewNop(), bridge, ff.build), ff
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func tick(ts int64) events.Envelope {
	return events.Envelope{
		Kind:      events.KindCandleTick,
		Timestamp: ts,
		Payload:   events.CandleTick{InstrumentID: "TQBR:SBER", Timeframe: "1m", Candle: models.MCandle{Time: ts / 1000}},
	}
}

func TestConnectSyntheticIsReadyImmediately(t *testing.T) {
	c, ff := newTestClient(true, time.Second, nil)

	c.Connect()
	if c.State() != StateConnected {
		t.Fatalf("State() = %s, want connected", c.State())
	}
	if ff.last().Name() != "synthetic" {
		t.Errorf("source = %s, want synthetic", ff.last().Name())
	}
}

func TestConnectLiveWaitsForReady(t *testing.T) {
	c, ff := newTestClient(false, time.Second, nil)

	c.Connect()
	if c.State() != StateReconnecting {
		t.Fatalf("State() = %s, want reconnecting", c.State())
	}
	ff.last().Sink().Ready()
	if c.State() != StateConnected {
		t.Fatalf("State() after ready = %s, want connected", c.State())
	}
}

func TestReconnectReplacesSource(t *testing.T) {
	c, ff := newTestClient(false, time.Second, nil)

	var got []int64
	c.Subscribe(events.KindCandleTick, func(env events.Envelope) { got = append(got, env.Timestamp) })

	c.Connect()
	first := ff.last()
	first.Sink().Ready()

	c.Disconnect()
	c.Connect()
	second := ff.last()

	if !first.Stopped() {
		t.Error("first source still running after reconnect")
	}
	if second.Stopped() {
		t.Error("second source stopped")
	}
	if c.State() != StateReconnecting {
		t.Errorf("State() = %s, want reconnecting before ready", c.State())
	}

	// The replaced source can no longer deliver or flip the state
	first.Sink().Emit(tick(1000))
	first.Sink().Ready()
	second.Sink().Emit(tick(2000))

	if len(got) != 1 || got[0] != 2000 {
		t.Errorf("observer got %v, want only the new source's event", got)
	}
	if c.State() != StateReconnecting {
		t.Errorf("stale ready changed state to %s", c.State())
	}
}

func TestLateReadyAfterReconnectIsIgnored(t *testing.T) {
	c, ff := newTestClient(false, time.Second, nil)

	var transitions []string
	c.supervisor.Watch(func(from, to State) { transitions = append(transitions, to.String()) })

	c.Connect()
	stale := ff.last().Sink()
	c.Disconnect()
	c.Connect()
	fresh := ff.last().Sink()

	stale.Ready()
	if c.State() != StateReconnecting {
		t.Fatalf("State() after stale ready = %s, want reconnecting", c.State())
	}

	fresh.Ready()
	if c.State() != StateConnected {
		t.Fatalf("State() after ready = %s, want connected", c.State())
	}
	if last := transitions[len(transitions)-1]; last != "connected" || len(transitions) != 4 {
		t.Errorf("transitions = %v", transitions)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, _ := newTestClient(true, time.Second, nil)

	c.Disconnect()
	c.Connect()
	c.Disconnect()
	c.Disconnect()

	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
	if st := c.Status(); st.Source != "" || st.ReconnectPending {
		t.Errorf("Status() = %+v, want no source and no pending reconnect", st)
	}
}

func TestTransportErrorSchedulesOneReconnect(t *testing.T) {
	c, ff := newTestClient(false, 30*time.Millisecond, nil)

	c.Connect()
	src := ff.last()
	src.Sink().Ready()

	src.Sink().Fail(errors.New("connection reset"))
	src.Sink().Fail(errors.New("connection reset again"))

	if c.State() != StateDisconnected {
		t.Fatalf("State() after error = %s, want disconnected", c.State())
	}
	if !src.Stopped() {
		t.Error("failed transport was not closed")
	}
	st := c.Status()
	if st.ReconnectsScheduled != 1 || !st.ReconnectPending {
		t.Fatalf("Status() = %+v, want exactly one pending reconnect", st)
	}

	waitFor(t, "reconnect attempt", func() bool { return ff.calls.Load() == 2 })
	if c.State() != StateReconnecting {
		t.Errorf("State() after reconnect = %s, want reconnecting", c.State())
	}

	time.Sleep(60 * time.Millisecond)
	if n := ff.calls.Load(); n != 2 {
		t.Errorf("factory called %d times, want 2", n)
	}
	c.Disconnect()
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	c, ff := newTestClient(false, 30*time.Millisecond, nil)

	c.Connect()
	ff.last().Sink().Fail(errors.New("eof"))
	c.Disconnect()

	time.Sleep(80 * time.Millisecond)
	if n := ff.calls.Load(); n != 1 {
		t.Errorf("factory called %d times after disconnect, want 1", n)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}

func TestConnectCancelsPendingReconnect(t *testing.T) {
	c, ff := newTestClient(false, 30*time.Millisecond, nil)

	c.Connect()
	ff.last().Sink().Fail(errors.New("eof"))
	c.Connect()

	time.Sleep(80 * time.Millisecond)
	if n := ff.calls.Load(); n != 2 {
		t.Errorf("factory called %d times, want 2 (no timer-driven attempt)", n)
	}
	c.Disconnect()
}

func TestStartErrorCountsAsTransportFailure(t *testing.T) {
	cfg := &models.MConfig{}
	cfg.Stream.ReconnectDelayMs = 1000
	c := NewClient(cfg, logger.NewNop(), nil, func(bool) interfaces.IStreamSource {
		return &fakeSource{name: "live", startErr: errors.New("bad url")}
	})

	c.Connect()
	st := c.Status()
	if st.State != StateDisconnected || !st.ReconnectPending || st.LastError != "bad url" {
		t.Errorf("Status() = %+v", st)
	}
	c.Disconnect()
}

func TestDispatchIsolatesObserverPanics(t *testing.T) {
	rec := &recordingInvalidator{}
	c, ff := newTestClient(true, time.Second, NewBridge(logger.NewNop(), rec))

	var calls []string
	c.Subscribe(events.KindTradeFilled, func(events.Envelope) { calls = append(calls, "a") })
	c.Subscribe(events.KindTradeFilled, func(events.Envelope) { panic("boom") })
	c.Subscribe(events.KindTradeFilled, func(events.Envelope) { calls = append(calls, "c") })
	c.Subscribe(events.KindOrdersChanged, func(events.Envelope) { calls = append(calls, "orders") })

	c.Connect()
	ff.last().Sink().Emit(events.Envelope{Kind: events.KindTradeFilled, Payload: events.RawPayload(`{}`)})

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "c" {
		t.Errorf("observer calls = %v, want [a c]", calls)
	}
	if keys := rec.take(); len(keys) != 2 || keys[0] != "positions" || keys[1] != "trades" {
		t.Errorf("invalidated %v, want [positions trades]", keys)
	}
}

func TestUnsubscribeDuringDispatch(t *testing.T) {
	c, ff := newTestClient(true, time.Second, nil)

	var bCalls int
	var unsubB func()
	c.Subscribe(events.KindCandleTick, func(events.Envelope) { unsubB() })
	unsubB = c.Subscribe(events.KindCandleTick, func(events.Envelope) { bCalls++ })

	c.Connect()
	sink := ff.last().Sink()
	sink.Emit(tick(1000))
	if bCalls != 1 {
		t.Fatalf("observer removed mid-dispatch got %d calls for that pass, want 1", bCalls)
	}
	sink.Emit(tick(2000))
	if bCalls != 1 {
		t.Errorf("observer received %d calls after unsubscribe, want 1", bCalls)
	}
}

func TestSubscribeFromInsideDispatch(t *testing.T) {
	c, ff := newTestClient(true, time.Second, nil)

	var late int
	c.Subscribe(events.KindBotStatus, func(events.Envelope) {
		c.Subscribe(events.KindBotStatus, func(events.Envelope) { late++ })
	})

	c.Connect()
	sink := ff.last().Sink()
	sink.Emit(events.Envelope{Kind: events.KindBotStatus, Payload: events.StatusPayload{}})
	if late != 0 {
		t.Errorf("observer added during dispatch ran in the same pass")
	}
	sink.Emit(events.Envelope{Kind: events.KindBotStatus, Payload: events.StatusPayload{}})
	if late != 1 {
		t.Errorf("late observer calls = %d, want 1", late)
	}
}

func TestDisconnectFromObserver(t *testing.T) {
	c, ff := newTestClient(true, time.Second, nil)

	var seen int
	c.Subscribe(events.KindCandleTick, func(events.Envelope) {
		seen++
		c.Disconnect()
	})

	c.Connect()
	sink := ff.last().Sink()
	sink.Emit(tick(1000))
	sink.Emit(tick(2000))

	if seen != 1 {
		t.Errorf("observer saw %d events, want 1", seen)
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", c.State())
	}
}

func TestSubscribeAll(t *testing.T) {
	c, ff := newTestClient(true, time.Second, nil)

	var kinds []events.Kind
	unsub := c.SubscribeAll(func(env events.Envelope) { kinds = append(kinds, env.Kind) })

	c.Connect()
	sink := ff.last().Sink()
	sink.Emit(tick(1000))
	sink.Emit(events.Envelope{Kind: events.KindOrdersChanged, Payload: events.RawPayload(`[]`)})
	unsub()
	sink.Emit(tick(2000))

	if len(kinds) != 2 || kinds[0] != events.KindCandleTick || kinds[1] != events.KindOrdersChanged {
		t.Errorf("kinds = %v", kinds)
	}
}
