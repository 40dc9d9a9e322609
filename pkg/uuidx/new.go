package uuidx

import "github.com/google/uuid"

// New generates a new UUID using the version 7 format and returns it.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString generates a new version 7 UUID and returns it as a string.
func NewString() string {
	return New().String()
}

// Prefixed returns a version 7 UUID string behind prefix and an underscore,
// e.g. "sub_0192...". An empty prefix yields a bare UUID.
func Prefixed(prefix string) string {
	if prefix == "" {
		return NewString()
	}
	return prefix + "_" + NewString()
}

// Short returns the last 12 hex digits of id, the random tail of a version 7
// UUID, for compact log output.
func Short(id uuid.UUID) string {
	s := id.String()
	return s[len(s)-12:]
}
