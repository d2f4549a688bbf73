package kintone

import (
	"errors"
	"fmt"

	"github.com/nucleus/ucl-kintone/internal/connector/http"
)

// RemoteRequestError wraps a failed call to the kintone API.
type RemoteRequestError struct {
	AppID string
	Op    string
	Err   error
}

func (e *RemoteRequestError) Error() string {
	if e.AppID == "" {
		return fmt.Sprintf("kintone %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("kintone %s app %s: %v", e.Op, e.AppID, e.Err)
}

func (e *RemoteRequestError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of the failed call, or 0 for
// transport failures.
func (e *RemoteRequestError) StatusCode() int {
	var httpErr *http.HTTPError
	if errors.As(e.Err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// Code returns the structured kintone error code, if any.
func (e *RemoteRequestError) Code() string {
	var httpErr *http.HTTPError
	if errors.As(e.Err, &httpErr) {
		return httpErr.Code
	}
	return ""
}

// RateLimitError is a RemoteRequestError caused by the account's API quota.
// Callers can back off and retry instead of aborting.
type RateLimitError struct {
	RemoteRequestError
}

func (e *RateLimitError) Error() string {
	return "rate limited: " + e.RemoteRequestError.Error()
}

func (e *RateLimitError) Unwrap() error { return &e.RemoteRequestError }

// SchemaMappingError reports a form field whose type tag has no mapping.
type SchemaMappingError struct {
	AppID    string
	FieldKey string
	Tag      string
}

func (e *SchemaMappingError) Error() string {
	return fmt.Sprintf("kintone app %s: field %q has unsupported type %q", e.AppID, e.FieldKey, e.Tag)
}

// MissingFieldError reports a label-mode projection whose record lacks a
// field that the schema declares.
type MissingFieldError struct {
	AppID       string
	FieldKey    string
	RecordIndex int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("kintone app %s: record %d has no field %q", e.AppID, e.RecordIndex, e.FieldKey)
}

// AuthenticationError is a failed connection check. Reason is meant for
// people; Err holds the underlying failure when there is one.
type AuthenticationError struct {
	Reason string
	AppID  string
	Err    error
}

// Connection check reasons.
const (
	ReasonNoApps        = "no applications are visible to this account"
	ReasonUnknownApp    = "application id does not exist"
	ReasonGuestSpaceApp = "application belongs to a guest space"
	ReasonLimitExceeded = "API call limit is exceeded"
	ReasonSystemError   = "system error"
)

func (e *AuthenticationError) Error() string {
	msg := "kintone authentication: " + e.Reason
	if e.AppID != "" {
		msg += " (app " + e.AppID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// wrapRemote classifies a client error for the given app and operation.
func wrapRemote(appID, op string, err error) error {
	if err == nil {
		return nil
	}
	base := RemoteRequestError{AppID: appID, Op: op, Err: err}
	if isQuotaError(err) {
		return &RateLimitError{RemoteRequestError: base}
	}
	return &base
}

func isQuotaError(err error) bool {
	var httpErr *http.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return httpErr.IsRateLimited() || httpErr.Code == "GAIA_TM12"
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var (
		rateErr    *RateLimitError
		remoteErr  *RemoteRequestError
		mappingErr *SchemaMappingError
		missingErr *MissingFieldError
	)
	switch {
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &mappingErr):
		return "schema_mapping"
	case errors.As(err, &missingErr):
		return "missing_field"
	case errors.As(err, &remoteErr):
		return "remote"
	default:
		return "other"
	}
}

// =============================================================================
// REMOTE ERROR CODES
// =============================================================================

var errorCodeMessages = map[string]string{
	"CB_AU01":   "Login required.",
	"CB_NO02":   "No permission.",
	"CB_IJ01":   "Invalid JSON string.",
	"CB_IL02":   "Illegal request.",
	"CB_TW02":   "Two-factor authentication is enabled. The REST API does not support two-factor authentication.",
	"CB_VA01":   "The query syntax is invalid.",
	"GAIA_FU01": "No permission to edit the field.",
	"GAIA_IL23": "Add the guest space ID to operate on apps inside a guest space.",
	"GAIA_IL26": "The specified user was not found.",
	"GAIA_IL28": "The specified organization was not found.",
	"GAIA_IL42": "A user, group or organization in the record filter does not exist. It may have been deleted.",
	"GAIA_IQ03": "The operator = cannot be used for the assignee field type.",
	"GAIA_IQ07": "Records cannot be read. The operator = cannot be used for number fields placed in a table.",
	"GAIA_IQ11": "The specified field was not found.",
	"GAIA_IR02": "The query given for the field is invalid. It can only be used with related records fields.",
	"GAIA_LO03": "Cannot copy the value from the lookup source. The source field must prohibit duplicate values.",
	"GAIA_LT01": "The operation failed because the database is locked. Try again later.",
	"GAIA_DA02": "The operation failed because the database is locked. Try again later.",
	"GAIA_NT01": "Only the assignee can change the status.",
	"GAIA_NO01": "This API token cannot run the requested API.",
	"GAIA_TM12": "The cursor limit has been reached. Delete unused cursors or try again later.",
	"GAIA_UN03": "Reload the record. Another user updated it while it was being edited.",

	http.CodeRequestLimitExceeded: "The API call limit is exceeded.",
}

// DescribeErrorCode returns a readable message for a kintone error code.
func DescribeErrorCode(code string) string {
	if msg, ok := errorCodeMessages[code]; ok {
		return msg
	}
	return "An unknown system error occurred."
}
