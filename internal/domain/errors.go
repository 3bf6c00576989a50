package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTicketNotFound is returned when a ticket id has no row in the local
// mirror. Refresh first.
var ErrTicketNotFound = errors.New("ticket not found in local mirror")

// UnhandledTicketError marks a ticket whose type, or whose ExtraText
// directive, is not recognized. The ticket is left untouched remotely
// and locally; it needs manual triage.
type UnhandledTicketError struct {
	TicketID  string
	Type      TicketType
	Directive string
}

func (e *UnhandledTicketError) Error() string {
	if e.Directive != "" {
		return fmt.Sprintf("ticket %s: unrecognized %q directive: %q", e.TicketID, e.Type, e.Directive)
	}
	return fmt.Sprintf("ticket %s: unrecognized ticket type %q", e.TicketID, e.Type)
}

// IsUnhandledTicket reports whether err is an UnhandledTicketError.
func IsUnhandledTicket(err error) (*UnhandledTicketError, bool) {
	var uerr *UnhandledTicketError
	ok := errors.As(err, &uerr)
	return uerr, ok
}

// AmbiguousCompanionError reports more than one plausible Add to budget
// companion for a New User ticket. Never auto-resolved.
type AmbiguousCompanionError struct {
	TicketID     string
	Username     string
	CandidateIDs []string
}

func (e *AmbiguousCompanionError) Error() string {
	return fmt.Sprintf("ticket %s: %d candidate companion tickets for user %q: %s",
		e.TicketID, len(e.CandidateIDs), e.Username, strings.Join(e.CandidateIDs, ", "))
}

// IsAmbiguousCompanion reports whether err is an AmbiguousCompanionError.
func IsAmbiguousCompanion(err error) (*AmbiguousCompanionError, bool) {
	var aerr *AmbiguousCompanionError
	ok := errors.As(err, &aerr)
	return aerr, ok
}
