// safesync shows, refreshes and closes SAFE tickets against the local
// system-of-record database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/tier2-ops/safesync/internal/config"
	"github.com/tier2-ops/safesync/internal/domain"
	"github.com/tier2-ops/safesync/internal/provision"
	"github.com/tier2-ops/safesync/internal/safe"
	"github.com/tier2-ops/safesync/internal/service"
	"github.com/tier2-ops/safesync/internal/store"
)

type args struct {
	show         bool
	jsonFile     string
	refresh      bool
	closeID      string
	closeAll     bool
	rejectID     string
	rejectReason string
	debug        bool
}

func parseArgs() args {
	var a args
	pflag.BoolVarP(&a.show, "show", "s", false, "Show all open tickets in SAFE")
	pflag.StringVarP(&a.jsonFile, "file", "f", "", "Parse json tickets from a file (parser test)")
	pflag.BoolVarP(&a.refresh, "refresh", "r", false, "Refresh open tickets in DB from SAFE and display them")
	pflag.StringVarP(&a.closeID, "close", "c", "", "Carry out and close this ticket ID")
	pflag.BoolVar(&a.closeAll, "close-all", false, "Carry out and close every locally pending ticket")
	pflag.StringVar(&a.rejectID, "reject", "", "Reject this ticket ID")
	pflag.StringVar(&a.rejectReason, "reject-reason", "other", "Rejection reason: error or other")
	pflag.BoolVar(&a.debug, "debug", false, "Show what would be submitted without committing the change")
	pflag.Parse()

	if !a.show && a.jsonFile == "" && !a.refresh && a.closeID == "" && !a.closeAll && a.rejectID == "" {
		pflag.Usage()
		os.Exit(1)
	}
	return a
}

func main() {
	a := parseArgs()

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.jsonFile != "" {
		if err := parseJSONFile(a.jsonFile); err != nil {
			logger.Error("parse failed", "file", a.jsonFile, "error", err)
			os.Exit(1)
		}
	}

	gateway := safe.NewClient(cfg.Safe, a.debug, logger)

	if a.show {
		tickets, err := gateway.FetchOpenTickets(ctx)
		if err != nil {
			logger.Error("could not fetch tickets", "error", err)
			os.Exit(1)
		}
		printTickets(tickets)
		fmt.Printf("Number of pending tickets: %d\n", len(tickets))
	}

	if !a.refresh && a.closeID == "" && !a.closeAll && a.rejectID == "" {
		return
	}

	// Only the database-touching modes pay for a connection.
	db, err := store.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tickets := store.NewTicketRepository(db.Pool)
	directory := store.NewDirectoryRepository(db.Pool)
	stores := service.Stores{Tickets: tickets, Directory: directory}
	tx := service.NewPgTransactor(store.NewTransactionCoordinator(db))
	prov := provision.NewCommandRunner(cfg.Provision, a.debug, logger)

	coordinator := service.NewCoordinator(gateway, stores, tx, prov, logger)

	if a.refresh {
		refresher := service.NewRefreshService(gateway, tickets, tx, a.debug, logger)
		pending, err := refresher.Refresh(ctx)
		if err != nil {
			logger.Error("refresh failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("Refreshed tickets:")
		printLocalTickets(pending)
	}

	if a.closeID != "" {
		if err := coordinator.Close(ctx, a.closeID); err != nil {
			logger.Error("closure failed", "ticket_id", a.closeID, "error", err)
			os.Exit(1)
		}
	}

	if a.closeAll {
		if err := coordinator.CloseAll(ctx); err != nil {
			logger.Error("batch closure finished with failures", "error", err)
			os.Exit(1)
		}
	}

	if a.rejectID != "" {
		if err := coordinator.Reject(ctx, a.rejectID, a.rejectReason); err != nil {
			logger.Error("rejection failed", "ticket_id", a.rejectID, "error", err)
			os.Exit(1)
		}
	}
}

func parseJSONFile(filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	tickets, err := safe.DecodeTickets(raw)
	if err != nil {
		return err
	}
	printTickets(tickets)
	fmt.Printf("Number of tickets included: %d\n", len(tickets))
	return nil
}

func printTickets(tickets []domain.Ticket) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tACCOUNT\tPROJECT\tMACHINE")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Type, t.Status, t.Account.Name, t.ProjectGroup.Code, t.Machine)
	}
	w.Flush()
}

func printLocalTickets(tickets []domain.LocalTicket) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tLOCAL\tACCOUNT\tPROJECT")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Type, t.Status, t.LocalStatus, t.Account.Name, t.ProjectGroup.Code)
	}
	w.Flush()
}
