package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Category sentinels for server-originated failures. Callers match with
// errors.Is; specific conflicts also match the generic ErrConflict.
var (
	ErrConflict         = errors.New("conflict")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrAlreadyAbandoned = errors.New("already abandoned")
	ErrChallengeFull    = errors.New("challenge full")
	ErrNotJoinable      = errors.New("challenge not joinable")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTransient        = errors.New("transient error")
)

// APIError is a normalized server rejection: HTTP status plus the machine
// code and message from the response body, when present.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// Is maps the error onto the category sentinels so call sites can use
// errors.Is without inspecting status codes.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAlreadyJoined:
		return e.Code == "already_joined"
	case ErrAlreadyAbandoned:
		return e.Code == "already_abandoned"
	case ErrChallengeFull:
		return e.Code == "challenge_full"
	case ErrNotJoinable:
		return e.Code == "not_joinable" || e.Code == "challenge_not_started"
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrTransient:
		return e.Status >= 500
	}
	return false
}
