package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/loadtest/events"
)

// HeaderAuthorization carries the raw session token. The Fleets API does not
// expect a "Bearer " prefix.
const HeaderAuthorization = "Authorization"

// SessionConfig contains the dependencies shared by all sessions of a run.
type SessionConfig struct {
	// BaseURL is the target host, e.g. http://localhost:8080
	BaseURL string

	Client *http.Client
	Bus    *events.Bus
	Logger *zap.Logger

	// UserAgent is sent with every request when set
	UserAgent string

	// Headers are added to every request
	Headers map[string]string

	// Seed for the session random source; 0 picks a random seed
	Seed uint64
}

// Session is the per-user state of a virtual user: an HTTP client bound to
// the target host, the authentication state, and a private random source.
//
// A session is owned by exactly one goroutine at a time.
type Session struct {
	ID    int
	Class string

	// Username is set by behaviors that log in
	Username string

	// UserID is the numeric id returned at login, 0 when unknown
	UserID int64

	// Faker is the random source for this session
	Faker *gofakeit.Faker

	token   string
	headers map[string]string

	baseURL   string
	client    *http.Client
	bus       *events.Bus
	logger    *zap.Logger
	userAgent string
	extra     map[string]string
}

// NewSession creates an unauthenticated session.
func NewSession(id int, class string, cfg SessionConfig) *Session {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seed := cfg.Seed
	if seed != 0 {
		seed += uint64(id)
	}

	return &Session{
		ID:        id,
		Class:     class,
		Faker:     gofakeit.New(seed),
		headers:   make(map[string]string),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    client,
		bus:       cfg.Bus,
		logger:    logger.With(zap.Int("vu", id), zap.String("class", class)),
		userAgent: cfg.UserAgent,
		extra:     cfg.Headers,
	}
}

// Authenticate stores the token and user id and derives the auth header.
func (s *Session) Authenticate(token string, userID int64) {
	s.token = token
	s.UserID = userID
	s.headers = map[string]string{HeaderAuthorization: token}
}

// Deauthenticate clears the authentication state.
func (s *Session) Deauthenticate() {
	s.token = ""
	s.UserID = 0
	s.headers = make(map[string]string)
}

// Authenticated reports whether the session holds a token.
func (s *Session) Authenticated() bool {
	return s.token != ""
}

// Token returns the session token, empty when unauthenticated.
func (s *Session) Token() string {
	return s.token
}

// AuthHeaders returns a copy of the headers sent with authenticated requests.
func (s *Session) AuthHeaders() map[string]string {
	out := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		out[k] = v
	}
	return out
}

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Request describes one HTTP request issued through a session.
type Request struct {
	// Name groups the request in statistics
	Name string

	Method string

	// Path is relative to the session base URL
	Path string

	Query url.Values

	// Body is encoded as JSON when non-nil
	Body interface{}

	// Auth attaches the session auth headers
	Auth bool
}

// Response is the outcome of a request issued through a session.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration

	// Err is set for transport errors and status >= 400
	Err error
}

// OK reports whether the request succeeded.
func (r *Response) OK() bool {
	return r.Err == nil
}

// Do executes the request, publishes a request event and returns the
// response. Requests aborted because ctx was cancelled are not published.
func (s *Session) Do(ctx context.Context, req *Request) *Response {
	target := s.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	start := time.Now()
	resp := s.execute(ctx, req, target)

	if ctx.Err() != nil && resp.Err != nil && errors.Is(resp.Err, ctx.Err()) {
		return resp
	}

	s.bus.FireRequest(events.RequestEvent{
		Method:        req.Method,
		Name:          req.Name,
		URL:           target,
		StatusCode:    resp.StatusCode,
		StartTime:     start,
		Duration:      resp.Duration,
		BytesReceived: int64(len(resp.Body)),
		Err:           resp.Err,
	})

	return resp
}

func (s *Session) execute(ctx context.Context, req *Request, target string) *Response {
	start := time.Now()
	resp := &Response{}

	httpReq, err := s.buildRequest(ctx, req, target)
	if err != nil {
		resp.Duration = time.Since(start)
		resp.Err = fmt.Errorf("failed to build request: %w", err)
		return resp
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		resp.Duration = time.Since(start)
		resp.Err = err
		return resp
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	resp.Duration = time.Since(start)
	resp.StatusCode = httpResp.StatusCode
	resp.Body = body

	if err != nil {
		resp.Err = fmt.Errorf("failed to read response body: %w", err)
		return resp
	}

	if httpResp.StatusCode >= 400 {
		resp.Err = &events.StatusError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
		}
	}

	return resp
}

func (s *Session) buildRequest(ctx context.Context, req *Request, target string) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	for k, v := range s.extra {
		httpReq.Header.Set(k, v)
	}
	if req.Auth {
		for k, v := range s.headers {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}
