package monitor

import (
	"fmt"
	"strings"
)

// Status labels written to Site.LastStatus and CheckLog.Status.
const (
	StatusPending       = "Pending"
	StatusHealthy       = "Healthy"
	StatusStringMissing = "String Missing"
)

const (
	downPrefix  = "Down"
	errorPrefix = "Error: "

	// maxErrorLen bounds the error text kept in a log row.
	maxErrorLen = 30
)

// Classify applies the classification law to an observed page: a status of
// 400 or more is Down, a page lacking the exact search string is String
// Missing, anything else is Healthy.
func Classify(statusCode int, content, search string) string {
	if statusCode >= 400 {
		return DownStatus(fmt.Sprintf("%d", statusCode))
	}
	if !strings.Contains(content, search) {
		return StatusStringMissing
	}
	return StatusHealthy
}

// DownStatus formats a Down label carrying a status code or failure reason.
func DownStatus(reason string) string {
	return fmt.Sprintf("%s (%s)", downPrefix, reason)
}

// ErrorStatus formats a probe failure as a truncated Error label.
func ErrorStatus(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	runes := []rune(msg)
	if len(runes) > maxErrorLen {
		runes = runes[:maxErrorLen]
	}
	return errorPrefix + string(runes)
}

// IsHealthy reports whether a status label is the healthy classification.
func IsHealthy(status string) bool {
	return status == StatusHealthy
}

// Outcome buckets a status label for metrics: healthy, down, string_missing or error.
func Outcome(status string) string {
	switch {
	case status == StatusHealthy:
		return "healthy"
	case status == StatusStringMissing:
		return "string_missing"
	case strings.HasPrefix(status, downPrefix):
		return "down"
	default:
		return "error"
	}
}
