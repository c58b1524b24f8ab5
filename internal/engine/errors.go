package engine

import (
	"errors"
	"fmt"
)

// ErrFatalPrecondition aborts a run before any slot is generated: the
// capability catalog could not be loaded or holds fewer than two entries.
var ErrFatalPrecondition = errors.New("fatal precondition")

// ParseFailure is returned when generator output holds no usable idea object.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (p *ParseFailure) Error() string {
	return "parse idea: " + p.Reason
}

// ServiceError wraps a failed call to an external collaborator (generation,
// embedding, persistence) with enough context to log it.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (s *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", s.Service, s.Op, s.Err)
}

func (s *ServiceError) Unwrap() error { return s.Err }
