package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs), "error is %T, want *ValidationErrors", err)
	return verrs.Fields()
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate_Host(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"http://localhost:8080", false},
		{"https://im.example.com", false},
		{"", true},
		{"ftp://example.com", true},
		{"localhost:8080", true},
		{"http://", true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			cfg := Default()
			cfg.Host = tt.host
			err := cfg.Validate()
			if tt.wantErr {
				assert.Contains(t, validationFields(t, err), "host")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_UsersAndSpawnRate(t *testing.T) {
	cfg := Default()
	cfg.Users = 0
	cfg.SpawnRate = -1

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "users")
	assert.Contains(t, fields, "spawnRate")
}

func TestValidate_ShapeIgnoresUsers(t *testing.T) {
	cfg := &TestConfig{Shape: &ShapeConfig{}}
	ApplyDefaults(cfg)
	cfg.Users = 0
	cfg.SpawnRate = 0

	assert.NoError(t, cfg.Validate())
}

func TestValidate_Shape(t *testing.T) {
	cfg := Default()
	cfg.Shape = &ShapeConfig{Type: "sine", StepTime: -1}

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "shape.type")
	assert.Contains(t, fields, "shape.stepTime")
	assert.Contains(t, fields, "shape.stepLoad")
	assert.Contains(t, fields, "shape.spawnRate")
	assert.Contains(t, fields, "shape.timeLimit")
}

func TestValidate_Classes(t *testing.T) {
	cfg := Default()
	cfg.Classes = map[string]int{ClassIMUser: 0, "bot": 1}

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "classes.im-user")
	assert.Contains(t, fields, "classes.bot")

	cfg.Classes = nil
	assert.Contains(t, validationFields(t, cfg.Validate()), "classes")
}

func TestValidate_TaskWeights(t *testing.T) {
	cfg := Default()
	cfg.IMUser.Tasks[TaskSendMessage] = 0
	cfg.IMUser.Tasks[TaskUserInfo] = -3
	cfg.IMUser.Tasks["delete account"] = 1

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "imUser.tasks.send message")
	assert.Contains(t, fields, "imUser.tasks.user info")
	assert.Contains(t, fields, "imUser.tasks.delete account")
}

func TestValidate_WaitBounds(t *testing.T) {
	cfg := Default()
	cfg.IMUser.MinWait = Duration(5e9)
	cfg.IMUser.MaxWait = Duration(1e9)
	cfg.AdminUser.MinWait = -1

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "imUser")
	assert.Contains(t, fields, "adminUser.minWait")
}

func TestValidate_IMUser(t *testing.T) {
	cfg := Default()
	cfg.IMUser.Password = ""
	cfg.IMUser.PoolSize = 0
	cfg.IMUser.Keywords = nil
	cfg.IMUser.MaxPeerID = -1

	fields := validationFields(t, cfg.Validate())
	assert.Contains(t, fields, "imUser.password")
	assert.Contains(t, fields, "imUser.poolSize")
	assert.Contains(t, fields, "imUser.keywords")
	assert.Contains(t, fields, "imUser.maxPeerId")
}

func TestValidate_Thresholds(t *testing.T) {
	cfg := Default()
	cfg.Thresholds = &ThresholdsConfig{
		HTTPReqDuration: []string{"p95 < 500ms", "bogus"},
		HTTPReqFailed:   []string{"rate < 0.01"},
		HTTPReqs:        []string{"count 10"},
	}

	fields := validationFields(t, cfg.Validate())
	assert.Equal(t, []string{"thresholds.http_req_duration[1]", "thresholds.http_reqs[0]"}, fields)
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("users", "must be positive")
	assert.Equal(t, "validation error on field 'users': must be positive", errs.Error())

	errs.Add("", "general")
	assert.Contains(t, errs.Error(), "2 validation errors")
	assert.Contains(t, errs.Error(), "validation error: general")
}
