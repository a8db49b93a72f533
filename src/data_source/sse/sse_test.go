package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"trading-console/src/events"
	"trading-console/src/logger"
	"trading-console/src/models"
)

func TestDecoderFrames(t *testing.T) {
	stream := ": ping\n\n" +
		"event: kline\r\n" +
		"data: {\"a\":1}\r\n" +
		"\r\n" +
		"id: 7\n" +
		"retry: 3000\n" +
		"data: line one\n" +
		"data:line two\n" +
		"\n" +
		"event: orphan\n" +
		"\n" +
		"data: no name\n" +
		"\n" +
		"event: cut\n" +
		"data: never terminated\n"

	dec := NewDecoder(strings.NewReader(stream))

	want := []Event{
		{Name: "kline", Data: `{"a":1}`},
		{Data: "line one\nline two", ID: "7", Retry: 3000},
		{Data: "no name", ID: "7"},
	}
	for i, w := range want {
		got, err := dec.Next()
		if err != nil {
			t.Fatalf("event %d: Next() error = %v", i, err)
		}
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestDecoderSkipsOversizedEvent(t *testing.T) {
	stream := "event: orders_updated\n" +
		"data: " + strings.Repeat("x", maxLineBytes+10) + "\n" +
		"data: tail\n" +
		"\n" +
		"event: kline\n" +
		"data: {\"a\":1}\n" +
		"\n"

	dec := NewDecoder(strings.NewReader(stream))

	ev, err := dec.Next()
	if !errors.Is(err, ErrEventTooLong) {
		t.Fatalf("Next() error = %v, want ErrEventTooLong", err)
	}
	if ev.Name != "orders_updated" {
		t.Errorf("oversized event name = %q", ev.Name)
	}

	got, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() after oversized event: %v", err)
	}
	if want := (Event{Name: "kline", Data: `{"a":1}`}); got != want {
		t.Errorf("event = %+v, want %+v", got, want)
	}
	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestDecoderLongLineUnderLimit(t *testing.T) {
	payload := strings.Repeat("y", 200*1024)
	got, err := NewDecoder(strings.NewReader("data: " + payload + "\r\n\r\n")).Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got.Data != payload {
		t.Errorf("data length = %d, want %d", len(got.Data), len(payload))
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base, token, want string
		wantErr           bool
	}{
		{"http://127.0.0.1:8000/api", "", "http://127.0.0.1:8000/api/stream", false},
		{"http://127.0.0.1:8000/api/", "s3cr3t", "http://127.0.0.1:8000/api/stream?token=s3cr3t", false},
		{"https://bot.example/api", "a b", "https://bot.example/api/stream?token=a+b", false},
		{"/api", "", "", true},
	}

	for _, tt := range tests {
		got, err := StreamURL(tt.base, tt.token)
		if (err != nil) != tt.wantErr {
			t.Errorf("StreamURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("StreamURL(%q, %q) = %s, want %s", tt.base, tt.token, got, tt.want)
		}
	}
}

// sink records a source's callbacks; failed is closed on the first Fail
type sink struct {
	mu     sync.Mutex
	ready  int
	got    []events.Envelope
	err    error
	failed chan struct{}
}

func newSink() *sink { return &sink{failed: make(chan struct{})} }

func (s *sink) Ready() {
	s.mu.Lock()
	s.ready++
	s.mu.Unlock()
}

func (s *sink) Emit(env events.Envelope) {
	s.mu.Lock()
	s.got = append(s.got, env)
	s.mu.Unlock()
}

func (s *sink) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
		close(s.failed)
	}
}

func (s *sink) waitFail(t *testing.T) error {
	t.Helper()
	select {
	case <-s.failed:
	case <-time.After(2 * time.Second):
		t.Fatal("source never failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func testConfig(base, token string) *models.MConfig {
	cfg := &models.MConfig{}
	cfg.Stream.APIBase = base
	cfg.Stream.Token = token
	return cfg
}

func TestSourceDeliversAndFailsOnClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stream" || r.URL.Query().Get("token") != "tok" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: kline\ndata: {\"type\":\"kline\",\"ts\":1000,\"data\":{\"instrument_id\":\"TQBR:SBER\",\"tf\":\"1m\",\"candle\":{\"time\":60,\"open\":1,\"high\":2,\"low\":0.5,\"close\":1.5,\"volume\":3}}}\n\n")
		fmt.Fprint(w, "event: kline\ndata: {not json\n\n")
		fmt.Fprint(w, "data: {\"type\":\"orders_updated\",\"ts\":2000,\"data\":[]}\n\n")
	}))
	defer srv.Close()

	src := NewSource(testConfig(srv.URL+"/api", "tok"), logger.NewNop(), srv.Client())
	s := newSink()
	if err := src.Start(context.Background(), s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := s.waitFail(t)
	if err == nil || !strings.Contains(err.Error(), "closed by server") {
		t.Errorf("Fail error = %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready != 1 {
		t.Errorf("Ready called %d times, want 1", s.ready)
	}
	if len(s.got) != 2 {
		t.Fatalf("emitted %d envelopes, want 2 (malformed one dropped)", len(s.got))
	}
	tick, ok := s.got[0].CandleTick()
	if !ok || tick.Candle.Time != 60 || tick.Candle.Volume != 3 {
		t.Errorf("first envelope = %+v", s.got[0])
	}
	if s.got[1].Kind != events.KindOrdersChanged {
		t.Errorf("second kind = %s", s.got[1].Kind)
	}
}

func TestSourceKeepsStreamAfterOversizedEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: orders_updated\ndata: {\"type\":\"orders_updated\",\"ts\":1,\"data\":\""+strings.Repeat("x", maxLineBytes)+"\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"orders_updated\",\"ts\":2000,\"data\":[]}\n\n")
	}))
	defer srv.Close()

	src := NewSource(testConfig(srv.URL, ""), logger.NewNop(), srv.Client())
	s := newSink()
	if err := src.Start(context.Background(), s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := s.waitFail(t)
	if err == nil || !strings.Contains(err.Error(), "closed by server") {
		t.Errorf("Fail error = %v, want the stream to run to its end", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.got) != 1 || s.got[0].Kind != events.KindOrdersChanged || s.got[0].Timestamp != 2000 {
		t.Errorf("emitted %+v, want only the trailing orders_updated", s.got)
	}
}

func TestSourceNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	src := NewSource(testConfig(srv.URL, ""), logger.NewNop(), srv.Client())
	s := newSink()
	if err := src.Start(context.Background(), s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.waitFail(t); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Fail error = %v", err)
	}
	if s.ready != 0 {
		t.Errorf("Ready called on a rejected stream")
	}
}

func TestSourceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	src := NewSource(testConfig(base, ""), logger.NewNop(), nil)
	s := newSink()
	if err := src.Start(context.Background(), s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.waitFail(t); err == nil {
		t.Error("expected a transport error")
	}
}

func TestSourceStopIsSilent(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	src := NewSource(testConfig(srv.URL, ""), logger.NewNop(), srv.Client())
	s := newSink()
	if err := src.Start(context.Background(), s); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		ready := s.ready
		s.mu.Unlock()
		if ready == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	src.Stop()
	src.Stop()

	select {
	case <-s.failed:
		t.Errorf("Stop reported a failure: %v", s.err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSourceStartRejectsRelativeBase(t *testing.T) {
	src := NewSource(testConfig("/api", ""), logger.NewNop(), nil)
	if err := src.Start(context.Background(), newSink()); err == nil {
		t.Error("Start() with a relative api base should fail")
	}
}
