package mailer

import (
	"errors"
	"fmt"
)

var (
	ErrNoRecipient        = errors.New("email must have a recipient")
	ErrNoSender           = errors.New("email must have a from address")
	ErrTemplateNotFound   = errors.New("template not found")
	ErrInvalidFrontmatter = errors.New("invalid frontmatter")
	ErrRenderFailed       = errors.New("failed to render template")
)

// Reason classifies a delivery failure.
type Reason string

const (
	ReasonAuth     Reason = "auth"     // credentials rejected
	ReasonProtocol Reason = "protocol" // server or API rejected the message
	ReasonOther    Reason = "other"    // network, rendering, anything else
)

// SendError is returned by every Transport.Send failure.
type SendError struct {
	Reason Reason
	To     string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send (%s): %v", e.Reason, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// FailureReason lets callers read the class without importing this package.
func (e *SendError) FailureReason() string { return string(e.Reason) }

// ReasonOf returns the Reason carried by err, or ReasonOther.
func ReasonOf(err error) Reason {
	var se *SendError
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonOther
}
