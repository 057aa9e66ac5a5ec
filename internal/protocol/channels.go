package protocol

import (
	"fmt"
	"strings"
)

// ValidateSubjectToken checks that a name is safe for use in NATS subjects.
// NATS treats '.', '*', and '>' as special characters in subjects.
// Returns an error if the name contains any of these or is empty.
func ValidateSubjectToken(name string) error {
	if name == "" {
		return fmt.Errorf("subject token must not be empty")
	}
	if strings.ContainsAny(name, ".*> \t\n\r") {
		return fmt.Errorf("subject token %q contains invalid NATS characters (.*> or whitespace)", name)
	}
	return nil
}

// EventSubject returns the NATS subject an event of the given type is published on.
func EventSubject(prefix string, eventType EventType) (string, error) {
	if err := ValidateSubjectToken(prefix); err != nil {
		return "", fmt.Errorf("invalid subject prefix: %w", err)
	}
	if err := ValidateSubjectToken(string(eventType)); err != nil {
		return "", fmt.Errorf("invalid event type: %w", err)
	}
	return fmt.Sprintf("%s.events.%s", prefix, eventType), nil
}

// EventWildcard returns the subject matching every event under prefix.
func EventWildcard(prefix string) (string, error) {
	if err := ValidateSubjectToken(prefix); err != nil {
		return "", fmt.Errorf("invalid subject prefix: %w", err)
	}
	return prefix + ".events.>", nil
}

// RPCSubject returns the request/reply subject for a bus method.
func RPCSubject(prefix, method string) (string, error) {
	if err := ValidateSubjectToken(prefix); err != nil {
		return "", fmt.Errorf("invalid subject prefix: %w", err)
	}
	if err := ValidateSubjectToken(method); err != nil {
		return "", fmt.Errorf("invalid method: %w", err)
	}
	return fmt.Sprintf("%s.rpc.%s", prefix, method), nil
}

// Bus request methods.
const (
	MethodSend        = "send"
	MethodPrivateSend = "private"
)
