package safe

import (
	"encoding/json"

	"github.com/tier2-ops/safesync/internal/domain"
)

// Wire schema for the SAFE ticket feed: a JSON array of envelopes, each
// wrapping one ticket object. Field names follow the servlet's output.

type wireEnvelope struct {
	Ticket wireTicket `json:"Ticket"`
}

type wireTicket struct {
	ID           string           `json:"Id"`
	Type         string           `json:"Type"`
	Status       string           `json:"Status"`
	Machine      string           `json:"Machine"`
	Account      wireAccount      `json:"Account"`
	ProjectGroup wireProjectGroup `json:"ProjectGroup"`
	Approver     wirePerson       `json:"Approver"`
	GoldTransfer wireGoldTransfer `json:"GoldTransfer"`
	ExtraText    string           `json:"ExtraText"`
	StartDate    string           `json:"StartDate"`
	EndDate      string           `json:"EndDate"`
}

type wireAccount struct {
	Name   string     `json:"Name"`
	Person wirePerson `json:"Person"`
}

type wirePerson struct {
	FirstName           string `json:"FirstName"`
	LastName            string `json:"LastName"`
	Email               string `json:"Email"`
	NormalisedPublicKey string `json:"NormalisedPublicKey"`
}

type wireProjectGroup struct {
	Code string `json:"Code"`
}

type wireGoldTransfer struct {
	SourceAccountID  string `json:"SourceAccountID"`
	SourceAllocation string `json:"SourceAllocation"`
	Amount           int64  `json:"Amount"`
}

// DecodeTickets parses the ticket feed payload. Missing required fields
// for a recognized type fail here, not later at action time. The raw
// payload rides along in the DecodeError for diagnosis.
func DecodeTickets(raw []byte) ([]domain.Ticket, error) {
	var envelopes []wireEnvelope
	if err := json.Unmarshal(raw, &envelopes); err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}

	tickets := make([]domain.Ticket, 0, len(envelopes))
	for _, env := range envelopes {
		t := toTicket(env.Ticket)
		if err := t.Validate(); err != nil {
			return nil, &DecodeError{Raw: raw, Err: err}
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

func toTicket(w wireTicket) domain.Ticket {
	return domain.Ticket{
		ID:      w.ID,
		Type:    domain.TicketType(w.Type),
		Status:  domain.RemoteStatus(w.Status),
		Machine: w.Machine,
		Account: domain.Account{
			Name:   w.Account.Name,
			Person: toPerson(w.Account.Person),
		},
		ProjectGroup: domain.ProjectGroup{Code: w.ProjectGroup.Code},
		Approver:     toPerson(w.Approver),
		GoldTransfer: domain.GoldTransfer{
			SourceAccountID:  w.GoldTransfer.SourceAccountID,
			SourceAllocation: w.GoldTransfer.SourceAllocation,
			Amount:           w.GoldTransfer.Amount,
		},
		ExtraText: w.ExtraText,
		StartDate: w.StartDate,
		EndDate:   w.EndDate,
	}
}

func toPerson(w wirePerson) domain.Person {
	return domain.Person{
		FirstName:           w.FirstName,
		LastName:            w.LastName,
		Email:               w.Email,
		NormalisedPublicKey: w.NormalisedPublicKey,
	}
}
