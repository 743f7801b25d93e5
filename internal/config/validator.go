package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the names of all fields with errors.
func (e *ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		out = append(out, err.Field)
	}
	return out
}

var knownClasses = map[string]bool{
	ClassIMUser:    true,
	ClassAdminUser: true,
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	validateHost(c.Host, errs)

	if c.Shape == nil {
		if c.Users <= 0 {
			errs.Add("users", "users must be greater than 0")
		}
		if c.SpawnRate <= 0 {
			errs.Add("spawnRate", "spawnRate must be greater than 0")
		}
	} else {
		validateShape(c.Shape, errs)
	}

	if c.RunTime < 0 {
		errs.Add("runTime", "cannot be negative")
	}

	validateClasses(c.Classes, errs)
	validateSettings(&c.Settings, errs)
	validateIMUser(&c.IMUser, errs)
	validateAdminUser(&c.AdminUser, errs)

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHost(host string, errs *ValidationErrors) {
	if host == "" {
		errs.Add("host", "host is required")
		return
	}

	u, err := url.Parse(host)
	if err != nil {
		errs.Add("host", fmt.Sprintf("invalid URL: %v", err))
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("host", fmt.Sprintf("unsupported scheme %q, want http or https", u.Scheme))
	}
	if u.Host == "" {
		errs.Add("host", "host name is required")
	}
}

func validateShape(s *ShapeConfig, errs *ValidationErrors) {
	if s.Type != ShapeStep {
		errs.Add("shape.type", fmt.Sprintf("unknown shape type: %s", s.Type))
	}
	if s.StepTime <= 0 {
		errs.Add("shape.stepTime", "must be greater than 0")
	}
	if s.StepLoad <= 0 {
		errs.Add("shape.stepLoad", "must be greater than 0")
	}
	if s.SpawnRate <= 0 {
		errs.Add("shape.spawnRate", "must be greater than 0")
	}
	if s.TimeLimit <= 0 {
		errs.Add("shape.timeLimit", "must be greater than 0")
	}
}

func validateClasses(classes map[string]int, errs *ValidationErrors) {
	if len(classes) == 0 {
		errs.Add("classes", "at least one user class is required")
		return
	}

	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !knownClasses[name] {
			errs.Add("classes."+name, fmt.Sprintf("unknown user class (want %s or %s)", ClassIMUser, ClassAdminUser))
			continue
		}
		if classes[name] <= 0 {
			errs.Add("classes."+name, "weight must be greater than 0")
		}
	}
}

func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
	if s.GracefulStop < 0 {
		errs.Add("settings.gracefulStop", "cannot be negative")
	}
}

func validateIMUser(u *IMUserConfig, errs *ValidationErrors) {
	if u.Password == "" {
		errs.Add("imUser.password", "password is required")
	}
	if u.PoolSize <= 0 {
		errs.Add("imUser.poolSize", "must be greater than 0")
	}
	if u.MaxPeerID <= 0 {
		errs.Add("imUser.maxPeerId", "must be greater than 0")
	}
	if len(u.Keywords) == 0 {
		errs.Add("imUser.keywords", "at least one keyword is required")
	}
	validateWait("imUser", u.MinWait, u.MaxWait, errs)

	known := make(map[string]bool)
	for _, name := range TaskNames() {
		known[name] = true
	}

	names := make([]string, 0, len(u.Tasks))
	for name := range u.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !known[name] {
			errs.Add("imUser.tasks."+name, "unknown task")
			continue
		}
		if u.Tasks[name] <= 0 {
			errs.Add("imUser.tasks."+name, "weight must be greater than 0")
		}
	}
}

func validateAdminUser(a *AdminUserConfig, errs *ValidationErrors) {
	if a.PageSize <= 0 {
		errs.Add("adminUser.pageSize", "must be greater than 0")
	}
	validateWait("adminUser", a.MinWait, a.MaxWait, errs)
}

func validateWait(prefix string, min, max Duration, errs *ValidationErrors) {
	if min < 0 {
		errs.Add(prefix+".minWait", "cannot be negative")
	}
	if max < 0 {
		errs.Add(prefix+".maxWait", "cannot be negative")
	}
	if min > max {
		errs.Add(prefix, "minWait must be less than or equal to maxWait")
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, threshold := range t.HTTPReqDuration {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqFailed {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqs {
		if err := validateThresholdExpression(threshold); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_reqs[%d]", i), err.Error())
		}
	}
}

// validateThresholdExpression validates a threshold expression.
//
// Valid formats:
//   - "p95 < 500ms"
//   - "avg < 200ms"
//   - "rate < 0.01"
//   - "count > 1000"
func validateThresholdExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("threshold expression cannot be empty")
	}

	validMetrics := []string{"p50", "p90", "p95", "p99", "min", "max", "avg", "med", "rate", "count"}
	validOps := []string{"<", ">", "<=", ">=", "==", "!="}

	found := false
	for _, metric := range validMetrics {
		if strings.HasPrefix(expr, metric) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("threshold must start with a valid metric (p50, p90, p95, p99, min, max, avg, med, rate, count)")
	}

	hasOp := false
	for _, op := range validOps {
		if strings.Contains(expr, op) {
			hasOp = true
			break
		}
	}
	if !hasOp {
		return fmt.Errorf("threshold must contain a comparison operator (<, >, <=, >=, ==, !=)")
	}

	return nil
}
