package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

// SecretString holds the gateway API key, webhook signing secrets and
// connection URLs with embedded passwords. Every formatting path (fmt, %#v,
// JSON, slog) prints a placeholder; only Unmask yields the value.
type SecretString string

func (s SecretString) String() string { return redactedPlaceholder }

func (s SecretString) GoString() string { return `types.SecretString("` + redactedPlaceholder + `")` }

func (s SecretString) LogValue() slog.Value { return slog.StringValue(redactedPlaceholder) }

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

func (s SecretString) Unmask() string { return string(s) }

func (s SecretString) IsSet() bool { return s != "" }
