package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultHost           = "http://localhost:8080"
	DefaultUsers          = 1
	DefaultSpawnRate      = 1.0
	DefaultPassword       = "Test@123456"
	DefaultUsernamePrefix = "testuser"
	DefaultPoolSize       = 100
	DefaultMaxPeerID      = 100
	DefaultAdminPageSize  = 20
	DefaultUserAgent      = "imload/1.0"

	DefaultIMMinWait    = time.Second
	DefaultIMMaxWait    = 3 * time.Second
	DefaultAdminMinWait = 5 * time.Second
	DefaultAdminMaxWait = 10 * time.Second

	DefaultStepTime       = 60 * time.Second
	DefaultStepLoad       = 20
	DefaultShapeSpawnRate = 5.0
	DefaultTimeLimit      = 600 * time.Second
)

// DefaultKeywords are the friend search keywords.
func DefaultKeywords() []string {
	return []string{"test", "user", "admin", "demo"}
}

// DefaultTaskWeights returns the standard user task weights.
func DefaultTaskWeights() map[string]int {
	return map[string]int{
		TaskSendMessage:      5,
		TaskListFriends:      3,
		TaskChatHistory:      2,
		TaskConversationList: 2,
		TaskUserInfo:         1,
		TaskSearchFriends:    1,
	}
}

// TaskNames lists the standard user task names in declaration order.
func TaskNames() []string {
	return []string{
		TaskSendMessage,
		TaskListFriends,
		TaskChatHistory,
		TaskConversationList,
		TaskUserInfo,
		TaskSearchFriends,
	}
}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Defaults are not applied.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	var rest string
	if n, _ := fmt.Sscanf(s, "%d%s", &seconds, &rest); n == 1 {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// Default returns a configuration with every default applied.
func Default() *TestConfig {
	cfg := &TestConfig{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values of config with defaults.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "Fleets IM load test"
	}
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Users == 0 {
		config.Users = DefaultUsers
	}
	if config.SpawnRate == 0 {
		config.SpawnRate = DefaultSpawnRate
	}
	if len(config.Classes) == 0 {
		config.Classes = map[string]int{
			ClassIMUser:    1,
			ClassAdminUser: 1,
		}
	}

	applySettingsDefaults(&config.Settings)
	applyIMUserDefaults(&config.IMUser)
	applyAdminUserDefaults(&config.AdminUser)

	if config.Shape != nil {
		applyShapeDefaults(config.Shape)
	}
}

func applySettingsDefaults(s *GlobalSettings) {
	if s.Timeout == 0 {
		s.Timeout = Duration(30 * time.Second)
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = 100
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}
	if s.GracefulStop == 0 {
		s.GracefulStop = Duration(30 * time.Second)
	}
}

func applyIMUserDefaults(u *IMUserConfig) {
	if u.Password == "" {
		u.Password = DefaultPassword
	}
	if u.UsernamePrefix == "" {
		u.UsernamePrefix = DefaultUsernamePrefix
	}
	if u.PoolSize == 0 {
		u.PoolSize = DefaultPoolSize
	}
	if len(u.Keywords) == 0 {
		u.Keywords = DefaultKeywords()
	}
	if u.MaxPeerID == 0 {
		u.MaxPeerID = DefaultMaxPeerID
	}
	if u.MinWait == 0 && u.MaxWait == 0 {
		u.MinWait = Duration(DefaultIMMinWait)
		u.MaxWait = Duration(DefaultIMMaxWait)
	}

	// Overrides are partial; missing tasks keep their default weight.
	weights := DefaultTaskWeights()
	for name, w := range u.Tasks {
		weights[name] = w
	}
	u.Tasks = weights
}

func applyAdminUserDefaults(a *AdminUserConfig) {
	if a.PageSize == 0 {
		a.PageSize = DefaultAdminPageSize
	}
	if a.MinWait == 0 && a.MaxWait == 0 {
		a.MinWait = Duration(DefaultAdminMinWait)
		a.MaxWait = Duration(DefaultAdminMaxWait)
	}
}

func applyShapeDefaults(s *ShapeConfig) {
	if s.Type == "" {
		s.Type = ShapeStep
	}
	if s.StepTime == 0 {
		s.StepTime = Duration(DefaultStepTime)
	}
	if s.StepLoad == 0 {
		s.StepLoad = DefaultStepLoad
	}
	if s.SpawnRate == 0 {
		s.SpawnRate = DefaultShapeSpawnRate
	}
	if s.TimeLimit == 0 {
		s.TimeLimit = Duration(DefaultTimeLimit)
	}
}

// SelectClasses restricts config.Classes to names. Unknown names are kept so
// that validation reports them.
func (c *TestConfig) SelectClasses(names []string) {
	if len(names) == 0 {
		return
	}

	selected := make(map[string]int, len(names))
	for _, name := range names {
		w, ok := c.Classes[name]
		if !ok || w <= 0 {
			w = 1
		}
		selected[name] = w
	}
	c.Classes = selected
}
