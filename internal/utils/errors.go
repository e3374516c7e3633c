package utils

import (
	"errors"
	"fmt"
)

// Operation names carried by AppError, one per alert store entry point.
const (
	OpStoreOpen      = "alertstore.open"
	OpStoreMigrate   = "alertstore.migrate"
	OpSaveAlert      = "alertstore.save_alert"
	OpListAlerts     = "alertstore.list_alerts"
	OpAlertsSince    = "alertstore.alerts_since"
	OpSaveThreshold  = "alertstore.save_threshold"
	OpLoadThresholds = "alertstore.load_thresholds"
)

// ErrInvalidPageToken marks a ListAlerts page token that is not a row offset. The gRPC layer
// maps it to InvalidArgument.
var ErrInvalidPageToken = errors.New("invalid page token")

// AppError ties a failure to the store operation and the record it concerned.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// OpOf returns the operation of the first AppError in err's chain, or "".
func OpOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}
