package store

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// UserFault marks an error caused by caller-supplied input. The API layer
// reports these back to the client with the message intact.
type UserFault struct {
	msg string
}

func (f *UserFault) Error() string { return f.msg }

// NewUserFault creates a user fault with a formatted message.
func NewUserFault(format string, args ...any) error {
	return &UserFault{msg: fmt.Sprintf(format, args...)}
}

// IsUserFault reports whether err (or anything it wraps) is a UserFault.
func IsUserFault(err error) bool {
	var f *UserFault
	return errors.As(err, &f)
}

// ApplicationFault marks a failure inside the store itself, such as a
// rejected write or an unserializable document.
type ApplicationFault struct {
	msg string
}

func (f *ApplicationFault) Error() string { return f.msg }

// NewApplicationFault creates an application fault with a formatted message.
func NewApplicationFault(format string, args ...any) error {
	return &ApplicationFault{msg: fmt.Sprintf(format, args...)}
}

// IsApplicationFault reports whether err (or anything it wraps) is an
// ApplicationFault.
func IsApplicationFault(err error) bool {
	var f *ApplicationFault
	return errors.As(err, &f)
}

// ValidateID checks that id has the shape Insert produces. Anything else
// is a user fault.
func ValidateID(id string) error {
	if len(id) != 32 {
		return NewUserFault("%q is not a valid task id, it must be a 32 character hex string", id)
	}
	if _, err := hex.DecodeString(id); err != nil {
		return NewUserFault("%q is not a valid task id, it must be a 32 character hex string", id)
	}
	return nil
}
