package imuser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
)

// StandardUser logs in with a pooled test account, runs weighted chat tasks
// and logs out when stopped.
//
// Every task is a no-op while the session is unauthenticated. Login is
// attempted once per session and never retried.
type StandardUser struct {
	cfg   config.IMUserConfig
	tasks *loadtest.TaskTable
	wait  loadtest.WaitTime
}

// NewStandardUser creates the behavior from cfg. Defaults must already be
// applied; task weights missing from cfg.Tasks are an error.
func NewStandardUser(cfg config.IMUserConfig) (*StandardUser, error) {
	u := &StandardUser{
		cfg:  cfg,
		wait: loadtest.Between(cfg.MinWait.GetDuration(0), cfg.MaxWait.GetDuration(0)),
	}

	fns := map[string]loadtest.TaskFunc{
		config.TaskSendMessage:      u.sendMessage,
		config.TaskListFriends:      u.listFriends,
		config.TaskChatHistory:      u.chatHistory,
		config.TaskConversationList: u.conversationList,
		config.TaskUserInfo:         u.userInfo,
		config.TaskSearchFriends:    u.searchFriends,
	}

	tasks := make([]loadtest.Task, 0, len(fns))
	for _, name := range config.TaskNames() {
		tasks = append(tasks, loadtest.Task{
			Name:   name,
			Weight: cfg.Tasks[name],
			Fn:     fns[name],
		})
	}

	table, err := loadtest.NewTaskTable(tasks...)
	if err != nil {
		return nil, fmt.Errorf("standard user: %w", err)
	}
	u.tasks = table

	return u, nil
}

// Tasks implements loadtest.Behavior.
func (u *StandardUser) Tasks() *loadtest.TaskTable { return u.tasks }

// WaitTime implements loadtest.Behavior.
func (u *StandardUser) WaitTime() loadtest.WaitTime { return u.wait }

// OnStart picks an identity from the pool and logs in.
func (u *StandardUser) OnStart(ctx context.Context, s *loadtest.Session) {
	s.Username = u.cfg.UsernamePrefix + strconv.Itoa(s.Faker.IntRange(1, u.cfg.PoolSize))

	resp := s.Do(ctx, &loadtest.Request{
		Name:   RequestLogin,
		Method: http.MethodPost,
		Path:   PathLogin,
		Body: loginRequest{
			Username: s.Username,
			Password: u.cfg.Password,
		},
	})

	if resp.StatusCode != http.StatusOK {
		s.Deauthenticate()
		fields := []zap.Field{zap.String("username", s.Username), zap.Int("status", resp.StatusCode)}
		if resp.Err != nil {
			fields = append(fields, zap.Error(resp.Err))
		}
		s.Logger().Info("login failed", fields...)
		return
	}

	result, err := ParseLogin(resp.Body)
	if err != nil {
		s.Deauthenticate()
		s.Logger().Info("login response rejected", zap.String("username", s.Username), zap.Error(err))
		return
	}

	s.Authenticate(result.Token, result.UserID)
	s.Logger().Debug("login succeeded", zap.String("username", s.Username), zap.Int64("userId", result.UserID))
}

// OnStop logs out authenticated sessions.
func (u *StandardUser) OnStop(ctx context.Context, s *loadtest.Session) {
	if !s.Authenticated() {
		return
	}

	s.Do(ctx, &loadtest.Request{
		Name:   RequestLogout,
		Method: http.MethodPost,
		Path:   PathLogout,
		Auth:   true,
	})
}

func (u *StandardUser) sendMessage(ctx context.Context, s *loadtest.Session) {
	if !s.Authenticated() {
		return
	}

	s.Do(ctx, &loadtest.Request{
		Name:   config.TaskSendMessage,
		Method: http.MethodPost,
		Path:   PathSendMessage,
		Auth:   true,
		Body: sendMessageRequest{
			ReceiverID:  s.Faker.IntRange(1, u.cfg.MaxPeerID),
			MessageType: MessageTypeSingle,
			ContentType: ContentTypeText,
			Content:     fmt.Sprintf("load test message %d", s.Faker.IntRange(1, maxMessageSeq)),
		},
	})
}

func (u *StandardUser) listFriends(ctx context.Context, s *loadtest.Session) {
	u.get(ctx, s, config.TaskListFriends, PathFriendList, nil)
}

func (u *StandardUser) chatHistory(ctx context.Context, s *loadtest.Session) {
	if !s.Authenticated() {
		return
	}

	u.get(ctx, s, config.TaskChatHistory, PathMessageHistory, url.Values{
		"targetUserId": {strconv.Itoa(s.Faker.IntRange(1, u.cfg.MaxPeerID))},
		"pageNum":      {firstPage},
		"pageSize":     {historyPageSize},
	})
}

func (u *StandardUser) conversationList(ctx context.Context, s *loadtest.Session) {
	u.get(ctx, s, config.TaskConversationList, PathConversationList, nil)
}

func (u *StandardUser) userInfo(ctx context.Context, s *loadtest.Session) {
	u.get(ctx, s, config.TaskUserInfo, PathUserInfo, nil)
}

func (u *StandardUser) searchFriends(ctx context.Context, s *loadtest.Session) {
	if !s.Authenticated() {
		return
	}

	keyword := u.cfg.Keywords[s.Faker.IntRange(0, len(u.cfg.Keywords)-1)]
	u.get(ctx, s, config.TaskSearchFriends, PathFriendSearch, url.Values{
		"keyword":  {keyword},
		"pageNum":  {firstPage},
		"pageSize": {historyPageSize},
	})
}

func (u *StandardUser) get(ctx context.Context, s *loadtest.Session, name, path string, query url.Values) {
	if !s.Authenticated() {
		return
	}

	s.Do(ctx, &loadtest.Request{
		Name:   name,
		Method: http.MethodGet,
		Path:   path,
		Query:  query,
		Auth:   true,
	})
}
