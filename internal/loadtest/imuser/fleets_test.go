package imuser

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/wesleyorama2/imload/internal/loadtest"
	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

// capturedRequest is one request seen by the fake Fleets server.
type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Body   map[string]interface{}
}

// fakeFleets is a minimal Fleets API used by behavior tests.
type fakeFleets struct {
	mu       sync.Mutex
	requests []capturedRequest

	loginStatus int
	loginBody   string
}

func newFakeFleets(t *testing.T) (*fakeFleets, *httptest.Server) {
	t.Helper()

	f := &fakeFleets{
		loginStatus: http.StatusOK,
		loginBody:   `{"code":200,"message":"success","data":{"token":"tok-abc","userId":42,"username":"testuser1"}}`,
	}

	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeFleets) serve(w http.ResponseWriter, r *http.Request) {
	req := capturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Auth:   r.Header.Get("Authorization"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, body := f.loginStatus, f.loginBody
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == PathLogin {
		w.WriteHeader(status)
		io.WriteString(w, body)
		return
	}
	io.WriteString(w, `{"code":200,"message":"success","data":null}`)
}

func (f *fakeFleets) setLogin(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginStatus = status
	f.loginBody = body
}

func (f *fakeFleets) all() []capturedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]capturedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeFleets) paths() []string {
	reqs := f.all()
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Path)
	}
	return out
}

func (f *fakeFleets) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

// eventLog records request events published by sessions.
type eventLog struct {
	mu     sync.Mutex
	events []events.RequestEvent
}

func (l *eventLog) record(ev events.RequestEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []events.RequestEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.RequestEvent, len(l.events))
	copy(out, l.events)
	return out
}

func newTestSession(server *httptest.Server, seed uint64) (*loadtest.Session, *eventLog) {
	bus := events.NewBus()
	log := &eventLog{}
	bus.OnRequest(log.record)

	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{
		BaseURL: server.URL,
		Client:  server.Client(),
		Bus:     bus,
		Seed:    seed,
	})
	return s, log
}
