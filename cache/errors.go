package cache

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeBackendUnavailable marks store failures. Callers fall back to the data source.
	TextCodeBackendUnavailable = "CACHE_BACKEND_UNAVAILABLE"
	// TextCodeSerializationFailure marks result sets that cannot be encoded.
	TextCodeSerializationFailure = "CACHE_SERIALIZATION_FAILED"
)

// BackendUnavailable wraps a store failure for operation op. It returns nil
// when err is nil.
func BackendUnavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "cache backend unavailable").
		WithTextCode(TextCodeBackendUnavailable).
		WithSeverity(goerrors.SeverityWarning).
		WithMetadata(map[string]any{"operation": op})
}

// SerializationFailure wraps an encoding error. It returns nil when err is nil.
func SerializationFailure(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "cache serialization failed").
		WithTextCode(TextCodeSerializationFailure).
		WithSeverity(goerrors.SeverityWarning)
}

// IsBackendUnavailable reports whether err carries the backend unavailable code.
func IsBackendUnavailable(err error) bool {
	return hasTextCode(err, TextCodeBackendUnavailable)
}

// IsSerializationFailure reports whether err carries the serialization failure code.
func IsSerializationFailure(err error) bool {
	return hasTextCode(err, TextCodeSerializationFailure)
}

func hasTextCode(err error, code string) bool {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}
