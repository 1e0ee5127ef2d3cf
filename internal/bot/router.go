package bot

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"camlbot/internal/sanitize"
	"camlbot/internal/session"
)

const helpText = `Hi. I am a very boring bot, who likes to talk in OCaml only. My available commands are:
  /help       - show this help message
  /kill       - close the OCaml shell in use
  /history    - list the commands recorded for replay
  /replay <n> - resend the n-th most recent command
  /ml <code>  - evaluate OCaml code`

var (
	evalPattern   = regexp.MustCompile(`^/ml ([\s\S]*)$`)
	replayPattern = regexp.MustCompile(`^/replay\s+([0-9]+)`)
)

// Router interprets inbound chat messages: control commands are handled
// directly, /ml payloads pass the sanitizer and go to the chat's
// interpreter, anything else is silently ignored.
type Router struct {
	registry *session.Registry
	filter   *sanitize.Filter
	sender   session.Sender
}

// NewRouter creates a router.
func NewRouter(registry *session.Registry, filter *sanitize.Filter, sender session.Sender) *Router {
	return &Router{
		registry: registry,
		filter:   filter,
		sender:   sender,
	}
}

// Handle dispatches one inbound message.
func (r *Router) Handle(chatID int64, text string) {
	switch {
	case strings.HasPrefix(text, "/help"):
		// /help never touches a session.
		r.reply(chatID, helpText)
	case strings.HasPrefix(text, "/kill"):
		r.kill(chatID)
	case strings.HasPrefix(text, "/history"):
		r.history(chatID)
	case strings.HasPrefix(text, "/replay"):
		r.replay(chatID, text)
	default:
		if m := evalPattern.FindStringSubmatch(text); m != nil {
			r.eval(chatID, m[1], true)
		}
		// Not a command for the bot; ignore.
	}
}

// eval forwards code to the chat's interpreter, creating the session if
// needed. Replayed history entries skip the filter: they passed it when
// first recorded and nothing else writes history.
func (r *Router) eval(chatID int64, code string, filter bool) {
	if filter {
		if token, hazardous := r.filter.Check(code); hazardous {
			r.reply(chatID, fmt.Sprintf("Sorry, your code seems to contain a forbidden identifier: %s", token))
			return
		}
	}

	s, err := r.registry.GetOrCreate(chatID)
	if err != nil {
		log.Printf("router: create session for chat %d: %v", chatID, err)
		r.reply(chatID, "Sorry, I could not start an OCaml shell for you.")
		return
	}

	if err := r.registry.Send(s, code); err != nil {
		log.Printf("router: chat %d: %v", chatID, err)
		r.reply(chatID, "Sorry, your command could not be delivered to the OCaml shell.")
		return
	}

	s.RecordHistory(code)
	s.MarkActive()
}

func (r *Router) kill(chatID int64) {
	err := r.registry.Destroy(chatID)
	if err == nil || errors.Is(err, session.ErrNotFound) {
		return
	}
	log.Printf("router: kill chat %d: %v", chatID, err)
}

func (r *Router) history(chatID int64) {
	s, ok := r.registry.Get(chatID)
	if !ok {
		r.reply(chatID, "No commands recorded yet.")
		return
	}

	entries := s.HistoryList()
	if len(entries) == 0 {
		r.reply(chatID, "No commands recorded yet.")
		return
	}

	var b strings.Builder
	for i, cmd := range entries {
		fmt.Fprintf(&b, "%d: %s\n", i+1, cmd)
	}
	r.reply(chatID, strings.TrimRight(b.String(), "\n"))
	s.MarkActive()
}

func (r *Router) replay(chatID int64, text string) {
	m := replayPattern.FindStringSubmatch(text)
	if m == nil {
		r.reply(chatID, "Usage: /replay <n>")
		return
	}
	n, _ := strconv.Atoi(m[1])

	s, ok := r.registry.Get(chatID)
	if !ok {
		r.reply(chatID, "No commands recorded yet.")
		return
	}

	cmd, err := s.HistoryAt(n)
	if err != nil {
		r.reply(chatID, fmt.Sprintf("No command at history position %d.", n))
		return
	}

	r.eval(chatID, cmd, false)
}

func (r *Router) reply(chatID int64, text string) {
	// The sender already retries; a persistent failure is only logged and
	// the user sees a missing reply.
	if err := r.sender.SendMessage(chatID, text); err != nil {
		log.Printf("router: reply to chat %d: %v", chatID, err)
	}
}
