package querycache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-console/src/apiclient"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/network"
)

func newTestCache(refetch bool, stale, poll time.Duration) *Cache {
	cfg := &models.MConfig{}
	cfg.Cache.RefetchOnInvalidate = refetch
	cfg.Cache.StaleTimeMs = int(stale / time.Millisecond)
	cfg.Cache.PollIntervalMs = int(poll / time.Millisecond)
	return NewCache(cfg, logger.NewNop())
}

// countingFetcher returns its call number as the value
func countingFetcher(n *atomic.Int32) Fetcher {
	return func(ctx context.Context) (interface{}, error) {
		return int(n.Add(1)), nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestGetCachesUntilInvalidated(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()
	var n atomic.Int32
	c.Register(models.QueryKeySignals, countingFetcher(&n))

	for i := 0; i < 3; i++ {
		v, err := c.Get(context.Background(), models.QueryKeySignals)
		if err != nil || v.(int) != 1 {
			t.Fatalf("Get() = %v, %v; want 1", v, err)
		}
	}

	c.Invalidate(models.QueryKeySignals)
	if e, _ := c.Peek(models.QueryKeySignals); !e.Stale {
		t.Error("entry not stale after Invalidate")
	}
	if n.Load() != 1 {
		t.Errorf("Invalidate without refetch fetched: %d calls", n.Load())
	}

	v, _ := c.Get(context.Background(), models.QueryKeySignals)
	if v.(int) != 2 {
		t.Errorf("Get() after invalidate = %v, want 2", v)
	}
	if e, _ := c.Peek(models.QueryKeySignals); e.Stale {
		t.Error("entry still stale after refetch")
	}
}

func TestGetUnknownKey(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()
	if _, err := c.Get(context.Background(), "nope"); err == nil {
		t.Error("Get(unknown) returned no error")
	}
	// invalidating an unregistered key is harmless
	c.Invalidate("nope")
	if _, ok := c.Peek("nope"); ok {
		t.Error("Peek(unknown) reported an entry")
	}
}

func TestStaleTimeExpiry(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()
	now := time.Unix(1_800_000_000, 0)
	c.now = func() time.Time { return now }

	var n atomic.Int32
	c.Register(models.QueryKeyBotStatus, countingFetcher(&n))

	c.Get(context.Background(), models.QueryKeyBotStatus)
	now = now.Add(59 * time.Second)
	c.Get(context.Background(), models.QueryKeyBotStatus)
	if n.Load() != 1 {
		t.Fatalf("fetched %d times inside the stale time", n.Load())
	}
	now = now.Add(2 * time.Second)
	if e, _ := c.Peek(models.QueryKeyBotStatus); !e.Stale {
		t.Error("Peek() not stale past the stale time")
	}
	c.Get(context.Background(), models.QueryKeyBotStatus)
	if n.Load() != 2 {
		t.Errorf("fetched %d times past the stale time, want 2", n.Load())
	}
}

func TestInvalidateDuringFetchKeepsStale(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	c.Register(models.QueryKeyOrders, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		return "old", nil
	})

	done := make(chan struct{})
	go func() {
		c.Get(context.Background(), models.QueryKeyOrders)
		close(done)
	}()
	<-started
	c.Invalidate(models.QueryKeyOrders)
	close(release)
	<-done

	e, ok := c.Peek(models.QueryKeyOrders)
	if !ok || e.Value != "old" || !e.Stale {
		t.Errorf("Peek() = %+v, want stale \"old\"", e)
	}
}

func TestConcurrentGetsShareOneFetch(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()

	var n atomic.Int32
	release := make(chan struct{})
	c.Register(models.QueryKeyPositions, func(ctx context.Context) (interface{}, error) {
		n.Add(1)
		<-release
		return "p", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Get(context.Background(), models.QueryKeyPositions); err != nil || v != "p" {
				t.Errorf("Get() = %v, %v", v, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n.Load() != 1 {
		t.Errorf("fetcher called %d times, want 1", n.Load())
	}
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	var fetchErr atomic.Value
	c.Register(models.QueryKeyPositions, func(ctx context.Context) (interface{}, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			fetchErr.Store(err)
			return nil, err
		}
		return "positions", nil
	})

	callerCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Get(callerCtx, models.QueryKeyPositions)
		first <- err
	}()
	<-started

	second := make(chan interface{}, 1)
	go func() {
		v, err := c.Get(context.Background(), models.QueryKeyPositions)
		if err != nil {
			v = err
		}
		second <- v
	}()

	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller got %v, want context.Canceled", err)
	}

	close(release)
	if v := <-second; v != "positions" {
		t.Errorf("waiting caller got %v, want positions", v)
	}
	if err := fetchErr.Load(); err != nil {
		t.Errorf("shared fetch saw %v", err)
	}
	if e, ok := c.Peek(models.QueryKeyPositions); !ok || e.Value != "positions" {
		t.Errorf("Peek() = %+v, %v", e, ok)
	}
}

func TestFetchErrorIsNotCached(t *testing.T) {
	c := newTestCache(false, time.Minute, 0)
	defer c.Close()

	fail := true
	c.Register(models.QueryKeySettings, func(ctx context.Context) (interface{}, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return "s", nil
	})

	if _, err := c.Get(context.Background(), models.QueryKeySettings); err == nil {
		t.Fatal("Get() swallowed the fetch error")
	}
	if e, _ := c.Peek(models.QueryKeySettings); e.Err != "backend down" {
		t.Errorf("Peek().Err = %q", e.Err)
	}

	fail = false
	if v, err := c.Get(context.Background(), models.QueryKeySettings); err != nil || v != "s" {
		t.Errorf("Get() after recovery = %v, %v", v, err)
	}
}

func TestRefetchOnInvalidate(t *testing.T) {
	c := newTestCache(true, time.Minute, 0)
	defer c.Close()

	var n atomic.Int32
	c.Register(models.QueryKeyTrades, countingFetcher(&n))

	var mu sync.Mutex
	var updates []string
	c.OnUpdate(func(key string) {
		mu.Lock()
		updates = append(updates, key)
		mu.Unlock()
	})

	c.Get(context.Background(), models.QueryKeyTrades)
	c.Invalidate(models.QueryKeyTrades)
	waitFor(t, "background refetch", func() bool { return n.Load() == 2 })
	// fetch, invalidate, refetch
	waitFor(t, "three updates", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 3
	})
	if e, _ := c.Peek(models.QueryKeyTrades); e.Stale || e.Value.(int) != 2 {
		t.Errorf("Peek() = %+v, want fresh 2", e)
	}
}

func TestPolling(t *testing.T) {
	c := newTestCache(false, time.Minute, 10*time.Millisecond)

	var polled, untouched atomic.Int32
	c.Register(models.QueryKeySignals, countingFetcher(&polled))
	c.Register(models.QueryKeyOrders, countingFetcher(&untouched))
	c.Get(context.Background(), models.QueryKeySignals)

	c.SetPolling(true)
	c.SetPolling(true)
	if !c.Polling() {
		t.Fatal("Polling() = false after SetPolling(true)")
	}
	waitFor(t, "polled refetches", func() bool { return polled.Load() >= 3 })

	c.SetPolling(false)
	if c.Polling() {
		t.Error("Polling() = true after SetPolling(false)")
	}
	if untouched.Load() != 0 {
		t.Errorf("polling fetched a key nobody read: %d", untouched.Load())
	}

	c.Close()
	c.SetPolling(true)
	if c.Polling() {
		t.Error("polling restarted after Close")
	}
}

func TestRegisterAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/signals":
			w.Write([]byte(`{"items":[{"id":"mock-1","side":"BUY","status":"pending_review"}]}`))
		case "/api/state/trades":
			w.Write([]byte(`{"items":[{"trade_id":"t1"},{"trade_id":"t2"}]}`))
		case "/api/state/positions":
			w.Write([]byte(`{"items":[{"instrument_id":"TQBR:SBER","realized_pnl":10,"unrealized_pnl":-4}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := &models.MConfig{}
	cfg.Stream.APIBase = srv.URL + "/api"
	cfg.Stream.Instrument = "TQBR:SBER"
	cfg.Stream.Timeframe = "1m"
	cfg.Network.RequestTimeout = 5
	cfg.Cache.StaleTimeMs = 60_000

	c := NewCache(cfg, logger.NewNop())
	defer c.Close()
	RegisterAPI(c, apiclient.NewClient(cfg, logger.NewNop(), network.NewAsyncNetworkManager(cfg, logger.NewNop())), cfg.Stream)

	want := append([]string(nil), models.AllQueryKeys...)
	sort.Strings(want)
	got := c.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	v, err := c.Get(context.Background(), models.QueryKeySignals)
	if err != nil {
		t.Fatalf("Get(signals) error = %v", err)
	}
	if sigs := v.([]models.MSignal); len(sigs) != 1 || sigs[0].ID != "mock-1" {
		t.Errorf("signals = %+v", sigs)
	}

	v, err = c.Get(context.Background(), models.QueryKeyDailyStats)
	if err != nil {
		t.Fatalf("Get(daily_stats) error = %v", err)
	}
	if st := v.(models.MDailyStats); st.TradesCount != 2 || st.PnL != 6 || st.MaxDrawdown != -4 {
		t.Errorf("daily stats = %+v", st)
	}
}
