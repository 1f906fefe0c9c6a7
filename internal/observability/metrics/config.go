// Package metrics holds the service metric instruments: HTTP server
// instruments over OpenTelemetry and task pipeline counters over
// Prometheus.
package metrics

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Config identifies the service on every instrument.
type Config struct {
	ServiceName string
	Environment string
}

var sensitiveMetricKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"plate",
}

// FilterAttributes drops attributes whose keys would leak credentials or
// vehicle identity into the metric store.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveMetricKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

func isSensitiveMetricKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveMetricKeys {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
