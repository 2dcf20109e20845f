package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/a11ywatch/finding"
)

func testEvent(seq uint64) finding.Event {
	return finding.Event{
		Type:      finding.EventLessonScanProgress,
		SessionID: "s1",
		Seq:       seq,
		At:        time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Data:      map[string]int{"screenNumber": int(seq)},
	}
}

func TestStdout_JSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	for i := uint64(1); i <= 2; i++ {
		if err := s.Send(context.Background(), testEvent(i)); err != nil {
			t.Fatal(err)
		}
	}
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var ev struct {
		Type string `json:"type"`
		Seq  uint64 `json:"seq"`
	}
	if err := json.Unmarshal(lines[1], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "lessonScanProgress" || ev.Seq != 2 {
		t.Errorf("ev = %+v", ev)
	}
}

func TestWebhook_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Lessonscan-Event") != "lessonScanProgress" {
			t.Errorf("event header = %q", r.Header.Get("X-Lessonscan-Event"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), testEvent(1)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestWebhook_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond))
	if err := w.Send(context.Background(), testEvent(1)); err == nil {
		t.Fatal("expected error")
	}
}

func TestHub_SubscribeAndLag(t *testing.T) {
	h := NewHub(nil)
	fast, cancelFast := h.Subscribe(4)
	slow, cancelSlow := h.Subscribe(1)
	defer cancelFast()

	for i := uint64(1); i <= 3; i++ {
		h.Send(context.Background(), testEvent(i))
	}
	for i := uint64(1); i <= 3; i++ {
		if ev := <-fast; ev.Seq != i {
			t.Errorf("fast got seq %d, want %d", ev.Seq, i)
		}
	}
	if ev := <-slow; ev.Seq != 1 {
		t.Errorf("slow got seq %d, want 1", ev.Seq)
	}
	select {
	case ev := <-slow:
		t.Errorf("slow should have missed later events, got %d", ev.Seq)
	default:
	}

	cancelSlow()
	cancelSlow()
	if _, ok := <-slow; ok {
		t.Error("cancelled channel still open")
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}

	h.Close()
	if _, ok := <-fast; ok {
		t.Error("Close left channel open")
	}
}

type failSink struct{ sent int }

func (f *failSink) Send(context.Context, finding.Event) error { f.sent++; return errors.New("down") }
func (f *failSink) Close() error                              { return nil }

func TestRouter_FanOutContinuesOnError(t *testing.T) {
	bad := &failSink{}
	var got []uint64
	cb := NewCallback(func(_ context.Context, ev finding.Event) error {
		got = append(got, ev.Seq)
		return nil
	})
	r := NewRouter(nil, bad, cb)

	if err := r.Send(context.Background(), testEvent(1)); err == nil {
		t.Error("expected first error")
	}
	r.Send(context.Background(), testEvent(2))
	if bad.sent != 2 || len(got) != 2 || got[1] != 2 {
		t.Errorf("bad.sent=%d got=%v", bad.sent, got)
	}
}
