package app

import (
	"errors"
	"fmt"
	"net/http"

	"avr/api/internal/ingest"
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

// mapIngestError translates pipeline failures into transport errors.
// Submitter mistakes are 406 like the rest of the validation surface,
// catalogue outages are 502, everything else is a 500.
func mapIngestError(err error) *DomainError {
	var ie *ingest.Error
	if errors.As(err, &ie) {
		switch ie.Class {
		case ingest.ClassClient:
			return domainError(http.StatusNotAcceptable, "NOT_ACCEPTABLE", ie.Message, nil)
		case ingest.ClassUpstream:
			return domainError(http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", ie.Message, nil)
		}
		return domainError(http.StatusInternalServerError, "SERVER_ERROR", ie.Message, nil)
	}
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil)
}
