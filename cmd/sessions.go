package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"text/tabwriter"
	"time"

	"happy/domain"
)

// SessionsCmd lists sessions grouped by project
type SessionsCmd struct {
	All bool `help:"Include inactive sessions" short:"a"`
}

// Run executes the sessions command
func (s *SessionsCmd) Run(cli *CLI) error {
	ctx := context.Background()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	hideInactive := cli.localSettings().HideInactive()
	if s.All {
		hideInactive = false
	}

	items := rt.store.SessionList(domain.SessionListOptions{
		HideInactive: hideInactive,
		Now:          time.Now(),
	})
	if len(items) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, item := range items {
		switch item.Kind {
		case domain.ItemHeader:
			fmt.Fprintf(w, "\n%s\n", item.Title)
		case domain.ItemSession:
			session := item.Session
			presence := session.Presence(time.Now())
			pending := len(session.PendingRequests())
			marker := ""
			if pending > 0 {
				marker = fmt.Sprintf("%d pending", pending)
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
				session.ID, session.DisplayName(), presence, marker)
		}
	}
	return w.Flush()
}

// WatchCmd tails a session transcript
type WatchCmd struct {
	Session string `arg:"" help:"Session id to watch"`
}

// Run executes the watch command
func (w *WatchCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rt, err := cli.connect(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.store.Session(w.Session) == nil {
		return fmt.Errorf("unknown session: %s", w.Session)
	}

	// Subscribe before taking the snapshot so a message applied in
	// between is delivered by the subscription; the printer dedups the
	// overlap
	printer := newTranscriptPrinter(os.Stdout)
	unsubscribe := rt.store.SubscribeMessages(w.Session, printer.flush)
	defer unsubscribe()
	printer.flush(rt.store.Messages(w.Session))

	<-ctx.Done()
	return nil
}

// transcriptPrinter prints each transcript message exactly once, oldest
// first. Notifications arrive from the store's mutating goroutines, so
// the printed set is mutex-guarded.
type transcriptPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]bool
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out, printed: make(map[string]bool)}
}

// flush prints the messages of a newest-first snapshot that have not
// been printed yet
func (p *transcriptPrinter) flush(messages []*domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.ID != "" {
			if p.printed[msg.ID] {
				continue
			}
			p.printed[msg.ID] = true
		}
		p.print(msg)
	}
}

func (p *transcriptPrinter) print(msg *domain.Message) {
	ts := time.UnixMilli(msg.CreatedAt).Format("15:04:05")
	switch msg.Kind {
	case domain.KindUserText:
		fmt.Fprintf(p.out, "[%s] you: %s\n", ts, msg.Text)
	case domain.KindAgentText:
		fmt.Fprintf(p.out, "[%s] agent: %s\n", ts, msg.Text)
	case domain.KindToolCall:
		for _, tool := range msg.Tools {
			fmt.Fprintf(p.out, "[%s] tool: %s (%s)\n", ts, tool.Name, tool.State)
		}
	default:
		fmt.Fprintf(p.out, "[%s] event\n", ts)
	}
}
