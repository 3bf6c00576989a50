package store

import (
	"github.com/tier2-ops/safesync/internal/domain"
)

// toRow flattens a ticket into the safetickets projection.
func toRow(t domain.Ticket) TicketRow {
	return TicketRow{
		ID:               t.ID,
		Type:             string(t.Type),
		Status:           string(t.Status),
		AccountName:      t.Account.Name,
		Machine:          t.Machine,
		Project:          t.ProjectGroup.Code,
		FirstName:        t.Account.Person.FirstName,
		LastName:         t.Account.Person.LastName,
		Email:            t.Account.Person.Email,
		PublicKey:        t.Account.Person.NormalisedPublicKey,
		PocFirstName:     t.Approver.FirstName,
		PocLastName:      t.Approver.LastName,
		PocEmail:         t.Approver.Email,
		SourceAccountID:  t.GoldTransfer.SourceAccountID,
		SourceAllocation: t.GoldTransfer.SourceAllocation,
		GoldAmount:       t.GoldTransfer.Amount,
		ExtraText:        t.ExtraText,
		StartDate:        t.StartDate,
		EndDate:          t.EndDate,
	}
}

// toLocalTicket rebuilds the domain view from a stored row.
func toLocalTicket(r TicketRow) domain.LocalTicket {
	return domain.LocalTicket{
		Ticket: domain.Ticket{
			ID:      r.ID,
			Type:    domain.TicketType(r.Type),
			Status:  domain.RemoteStatus(r.Status),
			Machine: r.Machine,
			Account: domain.Account{
				Name: r.AccountName,
				Person: domain.Person{
					FirstName:           r.FirstName,
					LastName:            r.LastName,
					Email:               r.Email,
					NormalisedPublicKey: r.PublicKey,
				},
			},
			ProjectGroup: domain.ProjectGroup{Code: r.Project},
			Approver: domain.Person{
				FirstName: r.PocFirstName,
				LastName:  r.PocLastName,
				Email:     r.PocEmail,
			},
			GoldTransfer: domain.GoldTransfer{
				SourceAccountID:  r.SourceAccountID,
				SourceAllocation: r.SourceAllocation,
				Amount:           r.GoldAmount,
			},
			ExtraText: r.ExtraText,
			StartDate: r.StartDate,
			EndDate:   r.EndDate,
		},
		LocalStatus: domain.LocalStatus(r.LocalStatus),
	}
}
