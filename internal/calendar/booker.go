// Package calendar books scheduled actions into an external calendar.
// Credentials are held per namespace in the storage layer; each business
// connects its own calendar account.
package calendar

import "errors"

var (
	// ErrNoCredential means the namespace has not connected a calendar
	ErrNoCredential = errors.New("no calendar credential for namespace")
	// ErrNoScheduledTime means the action carries no bookable time slot
	ErrNoScheduledTime = errors.New("action has no scheduled time")
)
