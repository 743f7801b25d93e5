// Command test-server is a stand-in Fleets server for trying imload locally.
//
// It accepts any testuserN login with the shared password, hands out a
// random token and answers every endpoint imload calls with a small JSON body. Requests to authenticated
// endpoints without a known token get 401.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/imuser"
	"github.com/wesleyorama2/imload/internal/logging"
)

type envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type server struct {
	logger   *zap.Logger
	delay    time.Duration
	password string

	mu     sync.RWMutex
	tokens map[string]int64
	nextID int64
}

func newServer(logger *zap.Logger, delay time.Duration, password string) *server {
	return &server{
		logger:   logger,
		delay:    delay,
		password: password,
		tokens:   make(map[string]int64),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(imuser.PathLogin, s.login)
	mux.HandleFunc(imuser.PathLogout, s.authenticated(s.logout))
	mux.HandleFunc(imuser.PathUserList, s.ok(map[string]interface{}{"total": 100, "list": []interface{}{}}))

	for _, path := range []string{
		imuser.PathUserInfo,
		imuser.PathSendMessage,
		imuser.PathMessageHistory,
		imuser.PathFriendList,
		imuser.PathFriendSearch,
		imuser.PathConversationList,
	} {
		mux.HandleFunc(path, s.authenticated(s.ok([]interface{}{})))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})
	return mux
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: 405, Message: "method not allowed"})
		return
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil || !strings.HasPrefix(req.Username, "testuser") || req.Password != s.password {
		s.logger.Debug("login rejected", zap.String("username", req.Username))
		writeJSON(w, http.StatusUnauthorized, envelope{Code: 401, Message: "invalid credentials"})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.tokens[token] = id
	s.mu.Unlock()

	s.logger.Debug("login", zap.String("username", req.Username), zap.Int64("user_id", id))
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success", Data: map[string]interface{}{
		"token":    token,
		"userInfo": map[string]interface{}{"id": id, "username": req.Username},
	}})
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.tokens, r.Header.Get("Authorization"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success"})
}

func (s *server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		_, ok := s.tokens[r.Header.Get("Authorization")]
		s.mu.RUnlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, envelope{Code: 401, Message: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *server) ok(data interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		writeJSON(w, http.StatusOK, envelope{Code: 200, Message: "success", Data: data})
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	var (
		addr     string
		delay    time.Duration
		level    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "test-server",
		Short: "Serve a minimal Fleets API for local load test runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := logging.DefaultConfig()
			cfg.Level = level
			logger, err := logging.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(logger, delay, password).routes(),
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      5 * time.Second,
				IdleTimeout:       120 * time.Second,
				ReadHeaderTimeout: 2 * time.Second,
			}

			logger.Info("starting test server", zap.String("addr", addr), zap.Duration("delay", delay))
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Artificial latency added to every data endpoint")
	cmd.Flags().StringVar(&level, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&password, "password", config.DefaultPassword, "Password every test user must log in with")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
