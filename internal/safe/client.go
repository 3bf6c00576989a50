// Package safe talks to the SAFE ticketing service: it fetches the open
// ticket feed and posts completion/rejection updates.
package safe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tier2-ops/safesync/internal/config"
	"github.com/tier2-ops/safesync/internal/domain"
)

// successMarker is the only thing that counts as a confirmed close. The
// servlet returns HTTP 200 for unconfirmed updates too, so status codes
// prove nothing. The response also echoes qtid, but the echo is not
// checked against the request; the servlet itself does not check it
// either.
const successMarker = "<title>SysAdminServlet Success</title>"

type Client struct {
	host       string
	user       string
	password   string
	httpClient *http.Client
	debug      bool
	logger     *slog.Logger
}

func NewClient(cfg config.SafeConfig, debug bool, logger *slog.Logger) *Client {
	return &Client{
		host:     cfg.Host,
		user:     cfg.User,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.ConnTimeout,
		},
		debug:  debug,
		logger: logger,
	}
}

// FetchOpenTickets issues an authenticated read of the machine-readable
// ticket feed and decodes it.
func (c *Client) FetchOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"?mode=json", nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading ticket feed: %w", err)}
	}

	tickets, err := DecodeTickets(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched open tickets", "count", len(tickets))
	return tickets, nil
}

// CloseTicket posts a completion or rejection update for one ticket.
// Success is recognized only by the servlet's success marker in the
// response body. In debug mode no network write happens; the intended
// parameters are reported and the result is flagged as a dry run.
func (c *Client) CloseTicket(ctx context.Context, params domain.CloseParams) (*domain.CloseResult, error) {
	if c.debug {
		c.logger.Info("debug: post request suppressed",
			"host", c.host,
			"params", params.Values().Encode(),
		)
		return &domain.CloseResult{DryRun: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host, nil)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.SetBasicAuth(c.user, c.password)
	req.URL.RawQuery = params.Values().Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading close response: %w", err)}
	}

	if !closeConfirmed(string(body)) {
		return nil, &RemoteRejectedError{TicketID: params.TicketID, Body: string(body)}
	}

	if params.IsRejection() {
		c.logger.Info("ticket rejected at safe", "ticket_id", params.TicketID, "mode", string(params.Mode))
	} else {
		c.logger.Info("ticket closed at safe", "ticket_id", params.TicketID, "mode", string(params.Mode))
	}
	return &domain.CloseResult{}, nil
}

// closeConfirmed is the single point of change for the fragile marker
// string.
func closeConfirmed(body string) bool {
	return strings.Contains(body, successMarker)
}
