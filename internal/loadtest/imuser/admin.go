package imuser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
)

// AdminUser pages through the user list without authenticating.
type AdminUser struct {
	pageSize int
	tasks    *loadtest.TaskTable
	wait     loadtest.WaitTime
}

// NewAdminUser creates the behavior from cfg.
func NewAdminUser(cfg config.AdminUserConfig) (*AdminUser, error) {
	a := &AdminUser{
		pageSize: cfg.PageSize,
		wait:     loadtest.Between(cfg.MinWait.GetDuration(0), cfg.MaxWait.GetDuration(0)),
	}
	if a.pageSize <= 0 {
		a.pageSize = config.DefaultAdminPageSize
	}

	table, err := loadtest.NewTaskTable(loadtest.Task{
		Name:   RequestAdminList,
		Weight: 1,
		Fn:     a.listUsers,
	})
	if err != nil {
		return nil, fmt.Errorf("admin user: %w", err)
	}
	a.tasks = table

	return a, nil
}

// Tasks implements loadtest.Behavior.
func (a *AdminUser) Tasks() *loadtest.TaskTable { return a.tasks }

// WaitTime implements loadtest.Behavior.
func (a *AdminUser) WaitTime() loadtest.WaitTime { return a.wait }

// OnStart implements loadtest.Behavior.
func (a *AdminUser) OnStart(context.Context, *loadtest.Session) {}

// OnStop implements loadtest.Behavior.
func (a *AdminUser) OnStop(context.Context, *loadtest.Session) {}

func (a *AdminUser) listUsers(ctx context.Context, s *loadtest.Session) {
	s.Do(ctx, &loadtest.Request{
		Name:   RequestAdminList,
		Method: http.MethodGet,
		Path:   PathUserList,
		Query: url.Values{
			"pageNum":  {firstPage},
			"pageSize": {strconv.Itoa(a.pageSize)},
		},
	})
}
