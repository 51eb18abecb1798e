// deskwatch logs in to the help desk, keeps a live session open and prints alerts, inbox
// changes and, with --ticket, one ticket's chat as it happens.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/client"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		apiURL   string
		wsURL    string
		email    string
		password string
		ticketID string
		send     string
		history  int
		verbose  bool
	)

	flagSet := pflag.NewFlagSet("deskwatch", pflag.ContinueOnError)
	flagSet.StringVar(&apiURL, "api", "http://localhost:8080", "REST API base URL")
	flagSet.StringVar(&wsURL, "ws", "ws://localhost:8081/ws", "realtime gateway URL")
	flagSet.StringVarP(&email, "email", "e", "", "account email")
	flagSet.StringVarP(&password, "password", "p", os.Getenv("DESKWATCH_PASSWORD"), "account password (or DESKWATCH_PASSWORD)")
	flagSet.StringVarP(&ticketID, "ticket", "t", "", "open this ticket's chat")
	flagSet.StringVar(&send, "send", "", "send one message to --ticket after connecting")
	flagSet.IntVar(&history, "history", 20, "chat messages to load when opening --ticket")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log session diagnostics")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if email == "" || password == "" {
		return fmt.Errorf("--email and --password are required")
	}
	if send != "" && ticketID == "" {
		return fmt.Errorf("--send needs --ticket")
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	api := client.NewAPIClient(apiURL, 10*time.Second)
	identity, err := api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("signed in as %s (%s)\n", identity.User.Name, identity.User.Role)

	view := &consoleView{ctx: ctx, api: api, out: os.Stdout}
	view.refreshInbox()

	session := client.NewSession(client.SessionConfig{
		URL:    wsURL,
		Token:  identity.Token,
		UserID: identity.User.ID,
		Role:   identity.User.Role,
		Logger: logger,
	}, view, view)

	if ticketID != "" {
		transcript := client.NewTranscript(ticketID, identity.User.ID, 0)
		page, err := api.Messages(ctx, ticketID, 1, history)
		if err != nil {
			return fmt.Errorf("load chat: %w", err)
		}
		entries := make([]client.Entry, 0, len(page.Data))
		for _, m := range page.Data {
			entries = append(entries, client.EntryFromResponse(m))
		}
		transcript.Load(entries)
		view.transcript = transcript
		session.Open(transcript)
		view.printTranscript()

		if send != "" {
			if _, err := client.NewChat(api, transcript).Send(ctx, send); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
			view.printTranscript()
		}
	}

	return session.Run(ctx)
}

// consoleView is both the Alerter and the Cache: invalidations trigger a refetch and a reprint.
type consoleView struct {
	ctx        context.Context
	api        *client.APIClient
	out        io.Writer
	transcript *client.Transcript

	mu      sync.Mutex
	printed int
}

func (v *consoleView) Alert(a client.Alert) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "[%s] %s: %s\n", a.At.Local().Format(time.Kitchen), a.Title, a.Message)
}

func (v *consoleView) Invalidate(key client.QueryKey) {
	switch {
	case key == client.QueryNotifications:
		v.refreshInbox()
	case key == client.QueryMyChats:
		v.printTranscript()
	case strings.HasPrefix(string(key), "ticket:"):
		// Detail views are not rendered here.
	}
}

func (v *consoleView) InvalidateAll() {
	v.refreshInbox()
	v.printTranscript()
}

func (v *consoleView) refreshInbox() {
	inbox, err := v.api.Notifications(v.ctx, 5)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		fmt.Fprintf(v.out, "inbox: %v\n", err)
		return
	}
	fmt.Fprintf(v.out, "inbox: %d unread\n", inbox.UnreadCount)
	for _, n := range inbox.Data {
		if !n.Read {
			fmt.Fprintf(v.out, "  * %s: %s\n", n.Title, n.Message)
		}
	}
}

// printTranscript prints entries not shown yet.
func (v *consoleView) printTranscript() {
	if v.transcript == nil {
		return
	}
	entries := v.transcript.Entries()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.printed > len(entries) {
		v.printed = 0
	}
	for _, e := range entries[v.printed:] {
		if e.Pending {
			break
		}
		name := e.SenderName
		if name == "" {
			name = "you"
		}
		fmt.Fprintf(v.out, "%s %s: %s\n", e.CreatedAt.Local().Format(time.Kitchen), name, e.Content)
		v.printed++
	}
}
