package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrParticipantNotFound = errors.New("event participant not found")
	ErrNotParticipant      = errors.New("user has not participated in this event")
	ErrNotCreator          = errors.New("user must be event creator")
	ErrNameTaken           = errors.New("name is taken")
	ErrInvalidSlot         = errors.New("one or more timeslots are invalid, check if the event has been updated")
	ErrNoSlots             = errors.New("event has no timeslots")
	ErrCodeTaken           = errors.New("url code already in use")
	ErrCodeGeneration      = errors.New("failed to generate a unique url code")
)

const (
	FieldTimeslots   = "timeslots"
	FieldTitle       = "title"
	FieldDuration    = "duration"
	FieldTimeZone    = "time_zone"
	FieldCustomCode  = "custom_code"
	FieldDisplayName = "display_name"
)

// ValidationError accumulates messages per input field.
type ValidationError struct {
	fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{fields: map[string][]string{}}
}

func (e *ValidationError) Add(field string, message string) {
	e.fields[field] = append(e.fields[field], message)
}

func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}

	for field, msgs := range other.fields {
		e.fields[field] = append(e.fields[field], msgs...)
	}
}

func (e *ValidationError) Empty() bool {
	return e == nil || len(e.fields) == 0
}

func (e *ValidationError) Fields() map[string][]string {
	return e.fields
}

// OrNil returns nil when nothing was added.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}

	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.fields[name], " ")))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

type Error struct {
	Message string              `json:"message,omitempty"`
	Err     []string            `json:"err,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func NewError(message string, errs ...error) *Error {
	e := &Error{Message: message}

	for _, err := range errs {
		if err == nil {
			continue
		}

		var verr *ValidationError
		if errors.As(err, &verr) {
			if e.Fields == nil {
				e.Fields = map[string][]string{}
			}

			for field, msgs := range verr.Fields() {
				e.Fields[field] = append(e.Fields[field], msgs...)
			}

			continue
		}

		e.Err = append(e.Err, err.Error())
	}

	return e
}

func (e *Error) Error() string {
	//nolint:errchkjson
	data, _ := json.Marshal(e)
	return string(data)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	if len(e.Err) == 0 {
		return nil
	}

	errs := make([]error, len(e.Err))
	for i, err := range e.Err {
		errs[i] = fmt.Errorf("%s", err)
	}

	return errors.Join(errs...)
}

func (e *Error) Messages() []string {
	return e.Err
}
