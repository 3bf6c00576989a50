package store

// TicketRow is the flat safetickets row: one ticket snapshot from SAFE
// plus the local closure status. Rows are upserted by id on refresh and
// retained for audit, never deleted.
type TicketRow struct {
	ID               string
	Type             string
	Status           string
	AccountName      string
	Machine          string
	Project          string
	FirstName        string
	LastName         string
	Email            string
	PublicKey        string
	PocFirstName     string
	PocLastName      string
	PocEmail         string
	SourceAccountID  string
	SourceAllocation string
	GoldAmount       int64
	ExtraText        string
	StartDate        string
	EndDate          string
	LocalStatus      string
}
