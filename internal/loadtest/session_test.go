package loadtest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/wesleyorama2/imload/internal/loadtest"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

type recorder struct {
	mu     sync.Mutex
	events []events.RequestEvent
}

func (r *recorder) record(ev events.RequestEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []events.RequestEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.RequestEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newRecordingBus() (*events.Bus, *recorder) {
	bus := events.NewBus()
	rec := &recorder{}
	bus.OnRequest(rec.record)
	return bus, rec
}

func TestSession_DoPublishesRequestEvent(t *testing.T) {
	var gotAuth, gotCT, gotQuery string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"code":200}`))
	}))
	defer server.Close()

	bus, rec := newRecordingBus()
	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{BaseURL: server.URL + "/", Bus: bus})
	s.Authenticate("tok-1", 9)

	resp := s.Do(context.Background(), &loadtest.Request{
		Name:   "send",
		Method: http.MethodPost,
		Path:   "/api/send",
		Query:  url.Values{"a": {"1"}},
		Body:   map[string]int{"x": 1},
		Auth:   true,
	})

	if !resp.OK() {
		t.Fatalf("Do() error = %v", resp.Err)
	}
	if gotAuth != "tok-1" {
		t.Errorf("Authorization = %q, want raw token", gotAuth)
	}
	if gotCT != "application/json" {
		t.Errorf("Content-Type = %q", gotCT)
	}
	if gotQuery != "a=1" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotBody["x"] != float64(1) {
		t.Errorf("body = %v", gotBody)
	}

	evs := rec.all()
	if len(evs) != 1 {
		t.Fatalf("events = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Name != "send" || ev.Method != http.MethodPost || ev.StatusCode != 200 || !ev.Success() {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.BytesReceived != int64(len(`{"code":200}`)) {
		t.Errorf("BytesReceived = %d", ev.BytesReceived)
	}
}

func TestSession_NoAuthHeaderWithoutAuthFlag(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{BaseURL: server.URL})
	s.Authenticate("tok", 1)
	s.Do(context.Background(), &loadtest.Request{Name: "x", Method: http.MethodGet, Path: "/"})

	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestSession_StatusErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	bus, rec := newRecordingBus()
	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{BaseURL: server.URL, Bus: bus})
	resp := s.Do(context.Background(), &loadtest.Request{Name: "x", Method: http.MethodGet, Path: "/"})

	var statusErr *events.StatusError
	if !errors.As(resp.Err, &statusErr) {
		t.Fatalf("Err = %v, want *events.StatusError", resp.Err)
	}
	if statusErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}

	evs := rec.all()
	if len(evs) != 1 || evs[0].Success() {
		t.Errorf("expected one failed event, got %+v", evs)
	}
}

func TestSession_TransportErrorIsFailure(t *testing.T) {
	bus, rec := newRecordingBus()
	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{
		BaseURL: "http://127.0.0.1:1",
		Bus:     bus,
		Client:  &http.Client{Timeout: time.Second},
	})

	resp := s.Do(context.Background(), &loadtest.Request{Name: "x", Method: http.MethodGet, Path: "/"})
	if resp.OK() {
		t.Fatal("expected transport error")
	}
	if evs := rec.all(); len(evs) != 1 || evs[0].StatusCode != 0 {
		t.Errorf("expected one event without status, got %+v", evs)
	}
}

func TestSession_CancelledRequestNotPublished(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	bus, rec := newRecordingBus()
	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{BaseURL: server.URL, Bus: bus})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp := s.Do(ctx, &loadtest.Request{Name: "x", Method: http.MethodGet, Path: "/"})
	if resp.OK() {
		t.Fatal("expected cancelled request to fail")
	}
	if evs := rec.all(); len(evs) != 0 {
		t.Errorf("cancelled request published %d events", len(evs))
	}
}

func TestSession_AuthState(t *testing.T) {
	s := loadtest.NewSession(3, "test", loadtest.SessionConfig{})
	if s.Authenticated() {
		t.Fatal("new session must be unauthenticated")
	}
	if len(s.AuthHeaders()) != 0 {
		t.Error("new session must have no auth headers")
	}

	s.Authenticate("abc", 12)
	if !s.Authenticated() || s.Token() != "abc" || s.UserID != 12 {
		t.Errorf("unexpected auth state: token=%q id=%d", s.Token(), s.UserID)
	}
	if h := s.AuthHeaders(); h[loadtest.HeaderAuthorization] != "abc" {
		t.Errorf("AuthHeaders() = %v", h)
	}

	s.Deauthenticate()
	if s.Authenticated() || s.UserID != 0 {
		t.Error("Deauthenticate() must clear state")
	}
}

func TestSession_SeedIsDeterministic(t *testing.T) {
	a := loadtest.NewSession(5, "test", loadtest.SessionConfig{Seed: 99})
	b := loadtest.NewSession(5, "test", loadtest.SessionConfig{Seed: 99})

	for i := 0; i < 20; i++ {
		if x, y := a.Faker.IntRange(1, 1000), b.Faker.IntRange(1, 1000); x != y {
			t.Fatalf("draw %d differs: %d != %d", i, x, y)
		}
	}
}
