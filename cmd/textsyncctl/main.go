package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/textsync/internal/aggregate"
	"github.com/matheus3301/textsync/internal/config"
	"github.com/matheus3301/textsync/internal/daemon"
	"github.com/matheus3301/textsync/internal/lock"
	"github.com/matheus3301/textsync/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	filterFlag := flag.String("filter", "all", "conversation filter: all, unread or groups")
	searchFlag := flag.String("search", "", "narrow conversations by name, number or message text")
	waitFlag := flag.Bool("wait", false, "send: wait for the server to acknowledge")
	flag.Parse()

	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		fatal(err)
	}
	sessionName, err := session.Resolve(*sessionFlag, cfg)
	if err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if pid, err := lock.Holder(session.LockPath(sessionName)); err != nil {
		fatal(err)
	} else if pid == 0 {
		fatal(fmt.Errorf("daemon for session %q is not running; start textsyncd --session %s", sessionName, sessionName))
	}

	c, err := daemon.NewClient(session.SocketPath(sessionName))
	if err != nil {
		fatal(err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out := printer{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "list":
		cmdList(ctx, c, *filterFlag, *searchFlag, out)
	case "thread":
		need(args, 2, "thread <thread-id>")
		cmdThread(ctx, c, args[1], out)
	case "read":
		need(args, 2, "read <thread-id>")
		check(c.MarkRead(ctx, args[1]))
	case "send":
		need(args, 3, "send <address> <text...>")
		cmdSend(ctx, c, daemon.SendBody{To: args[1], Body: strings.Join(args[2:], " "), Wait: *waitFlag}, out)
	case "reply":
		need(args, 3, "reply <thread-id> <text...>")
		cmdSend(ctx, c, daemon.SendBody{ThreadID: args[1], Body: strings.Join(args[2:], " ")}, out)
	case "retry":
		need(args, 2, "retry <local-id>")
		check(c.Retry(ctx, args[1]))
	case "contacts":
		cmdContacts(ctx, c, strings.Join(args[1:], " "), out)
	case "refresh":
		check(c.RefreshCursors(ctx))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: textsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show session and channel status")
	fmt.Fprintln(os.Stderr, "  list                     List conversations (--filter, --search)")
	fmt.Fprintln(os.Stderr, "  thread <id>              Show a conversation")
	fmt.Fprintln(os.Stderr, "  read <id>                Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  send <address> <text>    Send to a number (--wait to block on the server)")
	fmt.Fprintln(os.Stderr, "  reply <id> <text>        Send to an existing conversation")
	fmt.Fprintln(os.Stderr, "  retry <local-id>         Retry a failed send")
	fmt.Fprintln(os.Stderr, "  contacts [query]         Search contacts")
	fmt.Fprintln(os.Stderr, "  refresh                  Fetch read cursors now")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: textsyncctl %s\n", usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func check(err error) {
	if err == nil {
		return
	}
	if st, ok := grpcstatus.FromError(err); ok {
		fatal(fmt.Errorf("%s: %s", st.Code(), st.Message()))
	}
	fatal(err)
}

type printer struct{ json bool }

func (p printer) emit(v any, text func()) {
	if !p.json {
		text()
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func cmdStatus(ctx context.Context, c *daemon.Client, out printer) {
	rep, err := c.Status(ctx)
	check(err)
	out.emit(rep, func() {
		fmt.Printf("Session:  %s\n", rep.Session)
		fmt.Printf("Channel:  %s (attempts %d)\n", rep.Channel, rep.Attempts)
		load := "done"
		switch {
		case rep.Loading:
			load = "loading"
		case rep.LoadError != "":
			load = "failed: " + rep.LoadError
		case rep.Fallback:
			load = "done (single request fallback)"
		}
		fmt.Printf("History:  %s, %d pages, %d items\n", load, rep.Pages, rep.Items)
		fmt.Printf("Messages: %d in %d conversations, %d unread\n", rep.Messages, rep.Stats.Conversations, rep.Stats.Unread)
		if len(rep.FailedSends) > 0 {
			fmt.Printf("Failed:   %s\n", strings.Join(rep.FailedSends, ", "))
		}
		fmt.Printf("Uptime:   %s\n", time.Duration(rep.UptimeMs)*time.Millisecond)
	})
}

func cmdList(ctx context.Context, c *daemon.Client, filter, query string, out printer) {
	convs, err := c.Conversations(ctx, filter, query)
	check(err)
	out.emit(convs, func() {
		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return
		}
		now := time.Now()
		for _, conv := range convs {
			unread := ""
			if conv.UnreadCount > 0 {
				unread = fmt.Sprintf("(%d)", conv.UnreadCount)
			}
			fmt.Printf("%-24s %-5s %-8s %s\n", conv.DisplayName, unread,
				aggregate.FormatTimestamp(conv.LastMessage.Timestamp, now), preview(conv.LastMessage.Body))
			fmt.Printf("  %s\n", conv.ThreadID)
		}
	})
}

func cmdThread(ctx context.Context, c *daemon.Client, id string, out printer) {
	conv, err := c.Thread(ctx, id)
	check(err)
	out.emit(conv, func() {
		fmt.Printf("%s %s\n\n", conv.DisplayName, conv.Subtitle)
		now := time.Now()
		for _, m := range conv.Messages {
			who := conv.DisplayName
			if conv.IsGroup {
				who = m.Counterparty
			}
			if m.Direction == "sent" {
				who = "me"
			}
			fmt.Printf("[%s] %s: %s", aggregate.FormatTimestamp(m.Timestamp, now), who, m.Body)
			if m.State != "synced" {
				fmt.Printf(" (%s)", m.State)
			}
			fmt.Println()
		}
	})
}

func cmdSend(ctx context.Context, c *daemon.Client, body daemon.SendBody, out printer) {
	msg, err := c.Send(ctx, body)
	check(err)
	out.emit(msg, func() {
		fmt.Printf("%s %s -> %s\n", msg.State, msg.LocalID, msg.ThreadID)
	})
}

func cmdContacts(ctx context.Context, c *daemon.Client, query string, out printer) {
	entries, err := c.Contacts(ctx, query)
	check(err)
	out.emit(entries, func() {
		for _, e := range entries {
			fmt.Printf("%-24s %s\n", e.DisplayName, e.DisplayNumber)
		}
	})
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if r := []rune(body); len(r) > 48 {
		return string(r[:47]) + "…"
	}
	return body
}
