package domain

import "net/url"

// CloseMode is the completion mode SAFE expects in the update POST.
type CloseMode string

const (
	ModeCompleted CloseMode = "completed"
	// ModeError rejects a ticket because carrying it out would cause an
	// error; ModeRefused rejects for any other reason.
	ModeError   CloseMode = "error"
	ModeRefused CloseMode = "refused"
)

// CloseParams is the closed set of parameters for one SAFE close/reject
// POST. Built fresh per action by the per-type constructors below and
// never persisted. NewUsername is only set by the types whose completion
// reports a name back to SAFE.
type CloseParams struct {
	TicketID    string
	Mode        CloseMode
	NewUsername string
}

// CompleteNewUser closes a New User ticket, reporting the provisioned or
// located username.
func CompleteNewUser(ticketID, username string) CloseParams {
	return CloseParams{TicketID: ticketID, Mode: ModeCompleted, NewUsername: username}
}

// CompleteBudget closes a New Budget ticket. SAFE receives the derived
// project name in the new_username field; that is the servlet's field
// name, not ours.
func CompleteBudget(ticketID, projectName string) CloseParams {
	return CloseParams{TicketID: ticketID, Mode: ModeCompleted, NewUsername: projectName}
}

// CompleteGeneric closes any ticket type that only needs to be told it
// is complete.
func CompleteGeneric(ticketID string) CloseParams {
	return CloseParams{TicketID: ticketID, Mode: ModeCompleted}
}

// RejectError rejects a ticket that would cause an error.
func RejectError(ticketID string) CloseParams {
	return CloseParams{TicketID: ticketID, Mode: ModeError}
}

// RejectOther rejects a ticket for any other reason.
func RejectOther(ticketID string) CloseParams {
	return CloseParams{TicketID: ticketID, Mode: ModeRefused}
}

// IsRejection reports whether the parameters reject rather than complete.
func (p CloseParams) IsRejection() bool {
	return p.Mode == ModeError || p.Mode == ModeRefused
}

// Values renders the parameters as the query values the servlet expects.
func (p CloseParams) Values() url.Values {
	v := url.Values{}
	v.Set("qtid", p.TicketID)
	v.Set("mode", string(p.Mode))
	if p.NewUsername != "" {
		v.Set("new_username", p.NewUsername)
	}
	return v
}

// CloseResult reports the outcome of a confirmed close call. DryRun is
// set in debug mode, where no network write happens and the caller must
// skip the local commit.
type CloseResult struct {
	DryRun bool
}
