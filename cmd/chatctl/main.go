// chatctl is the operator's view of the conversational store: it talks to
// the same Redis the service uses, so anything done here is immediately
// visible to the running relay.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/config"
)

const usage = `usage: chatctl [-user <id>] <action>

actions:
  list       list users with stored history
  show       print one user's history (-user required)
  clear      delete one user's history (-user required)
  clear-all  delete every stored history (asks for confirmation)
  summary    print message count and role distribution (-user required)
`

func main() {
	_ = godotenv.Load()
	logrus.SetLevel(logrus.WarnLevel)

	user := flag.String("user", "", "user id (phone number) to operate on")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store := chat.NewStore(ctx, chat.Options{
		RedisURL:     cfg.RedisURL,
		HistoryLimit: cfg.HistoryLimit,
		HistoryTTL:   cfg.HistoryTTL,
		OpTimeout:    cfg.StorageOpTimeout,
	}, nil)
	defer store.Close()

	if !store.Durable() {
		fmt.Fprintln(os.Stderr, "warning: no redis configured, operating on an empty in-process store")
	}

	if err := run(ctx, store, flag.Arg(0), *user, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store *chat.Store, action, user string, in io.Reader, out io.Writer) error {
	switch action {
	case "list":
		return listChats(ctx, store, out)
	case "show":
		if user == "" {
			return fmt.Errorf("show requires -user")
		}
		return showChat(ctx, store, user, out)
	case "clear":
		if user == "" {
			return fmt.Errorf("clear requires -user")
		}
		if err := store.Clear(ctx, user); err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared history for %s\n", user)
		return nil
	case "clear-all":
		return clearAll(ctx, store, in, out)
	case "summary":
		if user == "" {
			return fmt.Errorf("summary requires -user")
		}
		return showSummary(ctx, store, user, out)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func listChats(ctx context.Context, store *chat.Store, out io.Writer) error {
	users, err := store.Users(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(out, "no active chats")
		return nil
	}
	for _, u := range users {
		sum, err := store.Summarize(ctx, u)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d messages\n", u, sum.Count)
	}
	return nil
}

func showChat(ctx context.Context, store *chat.Store, user string, out io.Writer) error {
	history, err := store.History(ctx, user)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(out, "history is empty")
		return nil
	}
	for i, m := range history {
		fmt.Fprintf(out, "%d. [%s] %s\n   %s\n", i+1, m.Role, m.Timestamp.Format("2006-01-02 15:04:05"), m.Content)
	}
	return nil
}

func clearAll(ctx context.Context, store *chat.Store, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, "really clear ALL chats? (y/N): ")
	answer, _ := bufio.NewReader(in).ReadString('\n')
	if strings.ToLower(strings.TrimSpace(answer)) != "y" {
		fmt.Fprintln(out, "cancelled")
		return nil
	}
	if err := store.ClearAll(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "all chats cleared")
	return nil
}

func showSummary(ctx context.Context, store *chat.Store, user string, out io.Writer) error {
	sum, err := store.Summarize(ctx, user)
	if err != nil {
		return err
	}
	if sum.Count == 0 {
		fmt.Fprintf(out, "%s: new conversation, no stored messages\n", user)
		return nil
	}
	fmt.Fprintf(out, "%s: %d messages (user %d, assistant %d, system %d)\n",
		user, sum.Count, sum.ByRole[chat.RoleUser], sum.ByRole[chat.RoleAssistant], sum.ByRole[chat.RoleSystem])
	fmt.Fprintf(out, "first: %s\nlast:  %s\n",
		sum.First.Format("2006-01-02 15:04:05"), sum.Last.Format("2006-01-02 15:04:05"))
	return nil
}
