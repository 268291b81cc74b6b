package event

import (
	"strings"
	"time"
)

// Command is an operator instruction consumed by the controller loop.
type Command string

const (
	CommandStop  Command = "stop"
	CommandStart Command = "start"
	CommandBuy   Command = "buy"
)

// ParseCommand maps operator text ("/stop", "stop", "/stop@bot") to a queued command.
func ParseCommand(text string) (Command, bool) {
	word := strings.ToLower(strings.TrimSpace(text))
	word = strings.TrimPrefix(word, "/")
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	switch Command(word) {
	case CommandStop, CommandStart, CommandBuy:
		return Command(word), true
	}
	return "", false
}

// Notification is a human-readable message for the operator.
type Notification struct {
	Text string
	At   time.Time
}

// NewNotification stamps text with the current time.
func NewNotification(text string) Notification {
	return Notification{Text: text, At: time.Now()}
}
