package app

import (
	"errors"
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Page-level outcomes that render as redirects rather than error bodies.
var (
	ErrLoginRequired = errors.New("login required")
	ErrNotMember     = errors.New("not a member of this group")
)

const (
	msgLoginToSave   = "You must be logged in to save."
	msgLoginToAdd    = "You must be logged in to add to a sheet."
	msgNoJSON        = "No JSON given in post data."
	msgNoRef         = "No ref given in post data."
	msgCannotEdit    = "You don't have permission to edit this sheet."
	msgNotAuthorized = "You are not authorized to view that."
	msgOwnerSharing  = "Only the sheet owner can change its sharing settings."
)

func errSheetNotFound(id int64) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Couldn't find sheet with id: %d", id), nil)
}

func errTopicNotFound(slug string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Couldn't find topic: %s", slug), nil)
}
