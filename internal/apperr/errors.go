// Package apperr defines the error taxonomy shared by the services and the
// conversation engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindCapacity   Kind = "capacity"
	KindConflict   Kind = "conflict"
	KindPermission Kind = "permission"
	KindInternal   Kind = "internal"
)

// Machine-readable codes. The transport maps them to localized text.
const (
	CodeInvalidDate       = "invalid_date"
	CodeInvalidDateTime   = "invalid_datetime"
	CodeInvalidPINFL      = "invalid_pinfl"
	CodeInvalidURL        = "invalid_url"
	CodeInvalidEmail      = "invalid_email"
	CodeInvalidPhone      = "invalid_phone"
	CodeInvalidChoice     = "invalid_choice"
	CodeInvalidNumber     = "invalid_number"
	CodeInvalidStatus     = "invalid_status"
	CodeEmptyInput        = "empty_input"
	CodeUnexpectedInput   = "unexpected_input"
	CodeUserNotFound      = "user_not_found"
	CodeTeamNotFound      = "team_not_found"
	CodeStageNotFound     = "stage_not_found"
	CodeHackathonNotFound = "hackathon_not_found"
	CodeSubmissionMissing = "submission_not_found"
	CodeNotMember         = "not_member"
	CodeTeamFull          = "team_full"
	CodeAlreadyRegistered = "already_registered"
	CodeCodeExhausted     = "code_exhausted"
	CodeDeadlinePassed    = "deadline_passed"
	CodeConsentRequired   = "consent_required"
	CodeNotRegistered     = "registration_required"
	CodeAdminOnly         = "admin_only"
	CodeNotTeamLead       = "not_team_lead"
	CodeInternal          = "internal"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Capacity(code, message string) *Error {
	return &Error{Kind: KindCapacity, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func Permission(code, message string) *Error {
	return &Error{Kind: KindPermission, Code: code, Message: message}
}

// Internal wraps a store or transport failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; unclassified errors are internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of err or CodeInternal.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap converts an arbitrary error into an *Error, keeping classified ones.
func Wrap(message string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(message, err)
}
