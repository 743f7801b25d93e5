// Package config provides configuration parsing and validation for imload runs.
package config

import (
	"time"
)

// User class names.
const (
	ClassIMUser    = "im-user"
	ClassAdminUser = "admin-user"
)

// Standard user task names. They double as request names in statistics.
const (
	TaskSendMessage      = "send message"
	TaskListFriends      = "list friends"
	TaskChatHistory      = "chat history"
	TaskConversationList = "conversation list"
	TaskUserInfo         = "user info"
	TaskSearchFriends    = "search friends"
)

// ShapeStep selects the step load shape.
const ShapeStep = "step"

// TestConfig is the root configuration for a load test run.
//
// Example YAML:
//
//	name: "Fleets IM load test"
//	host: "http://localhost:8080"
//	users: 100
//	spawnRate: 10
//	runTime: 5m
//	classes:
//	  im-user: 1
//	  admin-user: 1
//	imUser:
//	  password: "Test@123456"
//	  tasks:
//	    send message: 5
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL of the Fleets API
	Host string `json:"host" yaml:"host"`

	// Users is the target number of concurrent users
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// SpawnRate is how many users start per second
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// RunTime stops the run after this long; 0 runs until interrupted
	RunTime Duration `json:"runTime,omitempty" yaml:"runTime,omitempty"`

	// Classes maps user class names to spawn weights
	Classes map[string]int `json:"classes,omitempty" yaml:"classes,omitempty"`

	// Shape drives the user count over time instead of Users/SpawnRate
	Shape *ShapeConfig `json:"shape,omitempty" yaml:"shape,omitempty"`

	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	IMUser    IMUserConfig    `json:"imUser,omitempty" yaml:"imUser,omitempty"`
	AdminUser AdminUserConfig `json:"adminUser,omitempty" yaml:"adminUser,omitempty"`

	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`

	// Thresholds define pass/fail criteria for metrics
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Seed makes user random sources reproducible; 0 seeds randomly
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ShapeConfig selects and parameterizes a load shape.
type ShapeConfig struct {
	// Type is the shape kind: "step"
	Type string `json:"type" yaml:"type"`

	// StepTime is the length of one step
	StepTime Duration `json:"stepTime,omitempty" yaml:"stepTime,omitempty"`

	// StepLoad is the number of users added per step
	StepLoad int `json:"stepLoad,omitempty" yaml:"stepLoad,omitempty"`

	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	// TimeLimit ends the run once elapsed time exceeds it
	TimeLimit Duration `json:"timeLimit,omitempty" yaml:"timeLimit,omitempty"`
}

// GlobalSettings contains HTTP and execution settings.
type GlobalSettings struct {
	// Timeout is the HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are added to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// GracefulStop bounds the on-stop hook (logout) of each user
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// IMUserConfig parameterizes the standard IM user.
type IMUserConfig struct {
	// Password shared by all test accounts
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// UsernamePrefix and PoolSize define the identity pool prefix1..prefixN
	UsernamePrefix string `json:"usernamePrefix,omitempty" yaml:"usernamePrefix,omitempty"`
	PoolSize       int    `json:"poolSize,omitempty" yaml:"poolSize,omitempty"`

	// Keywords used by the friend search task
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// MaxPeerID bounds receiver and chat target ids, drawn from [1, MaxPeerID]
	MaxPeerID int `json:"maxPeerId,omitempty" yaml:"maxPeerId,omitempty"`

	MinWait Duration `json:"minWait,omitempty" yaml:"minWait,omitempty"`
	MaxWait Duration `json:"maxWait,omitempty" yaml:"maxWait,omitempty"`

	// Tasks overrides task weights by task name
	Tasks map[string]int `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// AdminUserConfig parameterizes the administrative user.
type AdminUserConfig struct {
	PageSize int `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`

	MinWait Duration `json:"minWait,omitempty" yaml:"minWait,omitempty"`
	MaxWait Duration `json:"maxWait,omitempty" yaml:"maxWait,omitempty"`
}

// OutputConfig controls reports and exporters.
type OutputConfig struct {
	// HTML report path
	HTML string `json:"html,omitempty" yaml:"html,omitempty"`

	// JSON result path
	JSON string `json:"json,omitempty" yaml:"json,omitempty"`

	// CSV is the file prefix for <prefix>_stats.csv and
	// <prefix>_stats_history.csv
	CSV string `json:"csv,omitempty" yaml:"csv,omitempty"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9646"
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	Quiet bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings
// or integer seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
