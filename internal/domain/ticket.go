// Package domain encodes the ticket entity mirrored from the SAFE
// ticketing service and its local lifecycle.
package domain

import "fmt"

// TicketType is the declared category of a SAFE ticket. It selects the
// handler responsible for completing the ticket.
type TicketType string

const (
	TypeNewUser       TicketType = "New User"
	TypeNewBudget     TicketType = "New Budget"
	TypeAddToBudget   TicketType = "Add to budget"
	TypeUpdateAccount TicketType = "Update account"
	TypeMoveGold      TicketType = "Move gold"
)

// RemoteStatus is the ticket lifecycle status as reported by SAFE. It is
// authoritative only at the source; the local copy is a cache.
type RemoteStatus string

const (
	RemoteOpen      RemoteStatus = "open"
	RemotePending   RemoteStatus = "pending"
	RemoteCompleted RemoteStatus = "completed"
	RemoteRejected  RemoteStatus = "rejected"
	RemoteError     RemoteStatus = "error"
)

// LocalStatus tracks closure progress in the local mirror so closure is
// idempotent across process restarts. Rows are never deleted.
type LocalStatus string

const (
	// LocalPending: mirrored but not yet acted on.
	LocalPending LocalStatus = "pending"
	// LocalDone: remote close confirmed and local entities updated.
	LocalDone LocalStatus = "done"
	// LocalFailed: the remote close was confirmed but the local commit
	// failed; the divergence needs operator attention.
	LocalFailed LocalStatus = "failed"
)

// Person holds identity fields for an account holder or approver.
type Person struct {
	FirstName           string
	LastName            string
	Email               string
	NormalisedPublicKey string
}

// Account is the account identity attached to account-affecting tickets.
type Account struct {
	Name   string
	Person Person
}

// ProjectGroup identifies a budget/allocation group.
type ProjectGroup struct {
	Code string
}

// GoldTransfer carries everything needed to execute an allocation
// transfer for a Move gold ticket.
type GoldTransfer struct {
	SourceAccountID  string
	SourceAllocation string
	Amount           int64
}

// Ticket is an immutable snapshot of one SAFE ticket. ID is the sole
// correlation key between SAFE and the local mirror.
type Ticket struct {
	ID           string
	Type         TicketType
	Status       RemoteStatus
	Machine      string
	Account      Account
	ProjectGroup ProjectGroup
	Approver     Person
	GoldTransfer GoldTransfer
	ExtraText    string
	StartDate    string
	EndDate      string
}

// LocalTicket is a ticket as persisted in the local mirror.
type LocalTicket struct {
	Ticket
	LocalStatus LocalStatus
}

// Validate checks that the fields required by the ticket's type are
// present. Tickets of unrecognized types pass validation; they are
// rejected later at dispatch so they stay visible in the mirror.
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("ticket has no id")
	}
	switch t.Type {
	case TypeNewUser:
		if t.Account.Name == "" && t.Account.Person.Email == "" {
			return t.missing("account")
		}
		if t.Approver.Email == "" {
			return t.missing("approver")
		}
	case TypeNewBudget:
		if t.ProjectGroup.Code == "" {
			return t.missing("project group")
		}
		if t.Approver.Email == "" {
			return t.missing("approver")
		}
	case TypeAddToBudget:
		if t.ProjectGroup.Code == "" {
			return t.missing("project group")
		}
		if t.Account.Name == "" {
			return t.missing("account")
		}
	case TypeUpdateAccount:
		if t.Account.Name == "" {
			return t.missing("account")
		}
		if t.ExtraText == "" {
			return t.missing("extra text")
		}
	case TypeMoveGold:
		if t.GoldTransfer.SourceAccountID == "" || t.GoldTransfer.SourceAllocation == "" {
			return t.missing("gold transfer source")
		}
		if t.GoldTransfer.Amount == 0 {
			return t.missing("gold transfer amount")
		}
	}
	return nil
}

func (t *Ticket) missing(field string) error {
	return fmt.Errorf("ticket %s (%s): required field %s is missing", t.ID, t.Type, field)
}
