package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest/metrics"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

var thresholdExpr = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// EvaluateThresholds checks snapshot against every configured threshold.
func EvaluateThresholds(t *config.ThresholdsConfig, snapshot *metrics.Snapshot) []ThresholdResult {
	if t == nil || snapshot == nil {
		return nil
	}

	var results []ThresholdResult
	for _, expr := range t.HTTPReqDuration {
		results = append(results, evaluateDuration(expr, snapshot))
	}
	for _, expr := range t.HTTPReqFailed {
		results = append(results, evaluateFailed(expr, snapshot))
	}
	for _, expr := range t.HTTPReqs {
		results = append(results, evaluateRequests(expr, snapshot))
	}
	return results
}

func evaluateDuration(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_req_duration", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	var actual time.Duration
	switch metric {
	case "min":
		actual = snapshot.Latency.Min
	case "max":
		actual = snapshot.Latency.Max
	case "avg", "med":
		actual = snapshot.Latency.Mean
	case "p50":
		actual = snapshot.Latency.P50
	case "p90":
		actual = snapshot.Latency.P90
	case "p95":
		actual = snapshot.Latency.P95
	case "p99":
		actual = snapshot.Latency.P99
	default:
		result.Message = fmt.Sprintf("unknown metric: %s", metric)
		return result
	}

	limit, err := config.ParseDurationString(valueStr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = actual.String()
	result.Passed = compareValues(float64(actual), op, float64(limit))
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", metric, actual, op, limit)
	}
	return result
}

func evaluateFailed(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_req_failed", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	if metric != "rate" {
		result.Message = fmt.Sprintf("http_req_failed only supports 'rate', got: %s", metric)
		return result
	}

	limit, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	result.Value = fmt.Sprintf("%.4f", snapshot.ErrorRate)
	result.Passed = compareValues(snapshot.ErrorRate, op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("error rate is %.4f, threshold: %s %.4f", snapshot.ErrorRate, op, limit)
	}
	return result
}

func evaluateRequests(expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{Metric: "http_reqs", Expression: expr}

	metric, op, valueStr, err := parseThresholdExpression(expr)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	limit, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse threshold value: %v", err)
		return result
	}

	var actual float64
	switch metric {
	case "count":
		actual = float64(snapshot.TotalRequests)
	case "rate":
		actual = snapshot.OverallRPS
	default:
		result.Message = fmt.Sprintf("http_reqs only supports 'count' or 'rate', got: %s", metric)
		return result
	}

	result.Value = fmt.Sprintf("%.2f", actual)
	result.Passed = compareValues(actual, op, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.2f, threshold: %s %.2f", metric, actual, op, limit)
	}
	return result
}

// parseThresholdExpression parses an expression like "p95 < 500ms".
func parseThresholdExpression(expr string) (metric, op, value string, err error) {
	matches := thresholdExpr.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return "", "", "", fmt.Errorf("invalid expression format: %s", expr)
	}
	return matches[1], matches[2], strings.TrimSpace(matches[3]), nil
}

func compareValues(actual float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "==", "=":
		return actual == threshold
	case "!=", "<>":
		return actual != threshold
	default:
		return false
	}
}
