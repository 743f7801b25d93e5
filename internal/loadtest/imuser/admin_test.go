package imuser

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
)

func TestAdminUser_ListUsers(t *testing.T) {
	fleets, server := newFakeFleets(t)
	s, log := newTestSession(server, 1)

	a, err := NewAdminUser(config.Default().AdminUser)
	require.NoError(t, err)

	ctx := context.Background()
	a.OnStart(ctx, s)
	assert.Empty(t, fleets.all(), "admin user does not log in")

	task := a.Tasks().Pick(s.Faker)
	task.Fn(ctx, s)
	a.OnStop(ctx, s)

	reqs := fleets.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, PathUserList, reqs[0].Path)
	assert.Equal(t, "1", reqs[0].Query.Get("pageNum"))
	assert.Equal(t, "20", reqs[0].Query.Get("pageSize"))
	assert.Empty(t, reqs[0].Auth)

	evs := log.all()
	require.Len(t, evs, 1)
	assert.Equal(t, RequestAdminList, evs[0].Name)
}

func TestAdminUser_WaitTime(t *testing.T) {
	a, err := NewAdminUser(config.Default().AdminUser)
	require.NoError(t, err)

	s := loadtest.NewSession(1, "test", loadtest.SessionConfig{Seed: 4})
	for i := 0; i < 200; i++ {
		d := a.WaitTime()(s.Faker)
		assert.True(t, d >= 5*time.Second && d <= 10*time.Second, "wait %s", d)
	}
}

func TestClasses(t *testing.T) {
	cfg := config.Default()
	cfg.Classes = map[string]int{config.ClassIMUser: 3, config.ClassAdminUser: 1}

	classes, err := Classes(cfg)
	require.NoError(t, err)
	require.Len(t, classes, 2)

	assert.Equal(t, config.ClassAdminUser, classes[0].Name)
	assert.Equal(t, 1, classes[0].Weight)
	assert.IsType(t, &AdminUser{}, classes[0].Behavior)

	assert.Equal(t, config.ClassIMUser, classes[1].Name)
	assert.Equal(t, 3, classes[1].Weight)
	assert.IsType(t, &StandardUser{}, classes[1].Behavior)

	cfg.Classes = map[string]int{"robot": 1}
	_, err = Classes(cfg)
	assert.Error(t, err)

	cfg.Classes = nil
	_, err = Classes(cfg)
	assert.Error(t, err)
}
