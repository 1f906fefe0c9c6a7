package tracing

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Provider credentials and platform tokens travel through span attributes in
// a few call sites; anything matching these substrings is dropped.
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"jcookie",
	"authorization",
	"client_id",
}

// SafeAttributes filters out attributes whose keys look credential-bearing.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	safe := attrs[:0:0]
	for _, attr := range attrs {
		key := strings.ToLower(strings.TrimSpace(string(attr.Key)))
		sensitive := false
		for _, needle := range sensitiveKeys {
			if strings.Contains(key, needle) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			safe = append(safe, attr)
		}
	}
	return safe
}

// SafeError reduces an error to its type name before it is recorded on a
// span. Provider error bodies can echo request payloads back.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%T", err)
}
