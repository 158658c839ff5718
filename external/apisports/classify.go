package apisports

import (
	"fmt"
	"sort"
	"strings"

	sonic "github.com/bytedance/sonic"
)

type ErrorType string

const (
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeAccess     ErrorType = "access"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// APIError is the classified form of the provider's error envelope.
type APIError struct {
	Type    ErrorType
	Code    string
	Message string
	Errors  []string
}

func (e *APIError) Error() string {
	return e.Summary()
}

func (e *APIError) IsRateLimit() bool {
	return e != nil && e.Type == ErrorTypeRateLimit
}

// Summary renders a short operator-facing description.
func (e *APIError) Summary() string {
	if e == nil {
		return ""
	}

	switch e.Type {
	case ErrorTypeRateLimit:
		return "Rate Limit: " + e.Message
	case ErrorTypeAuth:
		return "Authentication: " + e.Message
	case ErrorTypeAccess:
		return "Access: " + e.Message
	case ErrorTypeValidation:
		return "Validation: " + e.Message
	default:
		return "Provider Error: " + e.Message
	}
}

// errorField is the provider's error envelope resolved once into one
// of three shapes: absent, key/value map, or plain string list.
type errorField struct {
	entries map[string]string
	list    []string
}

func (f errorField) empty() bool {
	return len(f.entries) == 0 && len(f.list) == 0
}

// decodeErrorField tolerates the three wire shapes the provider uses
// for its errors field.
func decodeErrorField(raw []byte) (errorField, error) {
	if len(raw) == 0 {
		return errorField{}, nil
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return errorField{}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := sonic.Unmarshal(raw, &list); err != nil {
			return errorField{}, fmt.Errorf("decode provider error list: %w", err)
		}
		return errorField{list: list}, nil
	}

	var entries map[string]any
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		return errorField{}, fmt.Errorf("decode provider error map: %w", err)
	}

	out := make(map[string]string, len(entries))
	for key, value := range entries {
		out[key] = fmt.Sprintf("%v", value)
	}
	return errorField{entries: out}, nil
}

// Classify turns the provider's raw errors field into an APIError, or
// nil when the field is absent or empty.
func Classify(raw []byte) (*APIError, error) {
	field, err := decodeErrorField(raw)
	if err != nil {
		return nil, err
	}
	return classifyField(field), nil
}

func classifyField(field errorField) *APIError {
	if field.empty() {
		return nil
	}

	if len(field.list) > 0 {
		return &APIError{
			Type:    ErrorTypeUnknown,
			Code:    "API_ERROR",
			Message: strings.Join(field.list, ", "),
			Errors:  append([]string(nil), field.list...),
		}
	}

	// First match wins, checked in a fixed order regardless of map
	// iteration order.
	checks := []struct {
		key       string
		errorType ErrorType
		code      string
	}{
		{"rateLimit", ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED"},
		{"token", ErrorTypeAuth, "INVALID_TOKEN"},
		{"requests", ErrorTypeRateLimit, "REQUEST_LIMIT"},
		{"access", ErrorTypeAccess, "ACCESS_DENIED"},
		{"time", ErrorTypeValidation, "TIME_ERROR"},
	}

	for _, check := range checks {
		if message, ok := field.entries[check.key]; ok {
			return &APIError{
				Type:    check.errorType,
				Code:    check.code,
				Message: message,
				Errors:  collectEntryMessages(field.entries),
			}
		}
	}

	keys := make([]string, 0, len(field.entries))
	for key := range field.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	first := keys[0]
	message := field.entries[first]
	if strings.TrimSpace(message) == "" {
		message = "Unknown error"
	}

	return &APIError{
		Type:    ErrorTypeUnknown,
		Code:    strings.ToUpper(first),
		Message: message,
		Errors:  collectEntryMessages(field.entries),
	}
}

func collectEntryMessages(entries map[string]string) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(entries))
	for _, key := range keys {
		out = append(out, key+": "+entries[key])
	}
	return out
}
