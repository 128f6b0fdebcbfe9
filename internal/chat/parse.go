// Package chat implements the #todo chat command language.
package chat

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Prefix starts every chat command.
const Prefix = "#todo"

// AckReply is the bare reply that acknowledges the latest reminder batch.
const AckReply = "1"

// Kind identifies a parsed chat command.
type Kind int

const (
	KindNone Kind = iota
	KindHelp
	KindAdd
	KindList
	KindToday
	KindDone
	KindDelete
	KindReset
	KindUndo
	KindAck
)

func (k Kind) String() string {
	switch k {
	case KindHelp:
		return "help"
	case KindAdd:
		return "add"
	case KindList:
		return "list"
	case KindToday:
		return "today"
	case KindDone:
		return "done"
	case KindDelete:
		return "delete"
	case KindReset:
		return "reset"
	case KindUndo:
		return "undo"
	case KindAck:
		return "ack"
	default:
		return "none"
	}
}

// Command is one parsed chat message.
type Command struct {
	Kind Kind
	// Arg is the task id for done/del/reset/undo and the filter for list.
	Arg        string
	Title      string
	RemindAt   *time.Time
	Recurrence string
}

var (
	noRemindFlag = regexp.MustCompile(`(?i)/(noremind|no)\b`)
	atFlag       = regexp.MustCompile(`/at\s+([0-9]{4}[-/][0-9]{2}[-/][0-9]{2})\s+([0-9]{2}:[0-9]{2})`)
	everyFlag    = regexp.MustCompile(`(?i)/every\s+(\S+)`)
	spaces       = regexp.MustCompile(`\s+`)
)

var verbs = map[string]Kind{
	"help":  KindHelp,
	"list":  KindList,
	"ls":    KindList,
	"today": KindToday,
	"done":  KindDone,
	"del":   KindDelete,
	"rm":    KindDelete,
	"reset": KindReset,
	"undo":  KindUndo,
}

// Parse interprets text. Messages that are neither a #todo command nor the
// acknowledgement reply yield KindNone. Times given with /at are read in loc.
func Parse(text string, loc *time.Location) (Command, error) {
	text = strings.TrimSpace(text)
	if text == AckReply {
		return Command{Kind: KindAck}, nil
	}

	rest, ok := cutPrefix(text)
	if !ok {
		return Command{Kind: KindNone}, nil
	}
	if rest == "" {
		return Command{Kind: KindHelp}, nil
	}

	fields := strings.Fields(rest)
	if kind, ok := verbs[strings.ToLower(fields[0])]; ok {
		cmd := Command{Kind: kind}
		if len(fields) > 1 {
			cmd.Arg = fields[1]
		}
		switch kind {
		case KindDone, KindDelete, KindReset, KindUndo:
			if cmd.Arg == "" {
				return Command{}, fmt.Errorf("usage: %s %s <id>", Prefix, fields[0])
			}
		}
		return cmd, nil
	}

	return parseAdd(rest, loc)
}

func parseAdd(body string, loc *time.Location) (Command, error) {
	cmd := Command{Kind: KindAdd}

	if m := everyFlag.FindStringSubmatchIndex(body); m != nil {
		cmd.Recurrence = strings.ToLower(body[m[2]:m[3]])
		body = body[:m[0]] + " " + body[m[1]:]
	}

	if m := noRemindFlag.FindStringIndex(body); m != nil {
		body = body[:m[0]] + " " + body[m[1]:]
		// An explicit no-reminder wins over /at.
		body = atFlag.ReplaceAllString(body, " ")
	} else if m := atFlag.FindStringSubmatchIndex(body); m != nil {
		date := strings.ReplaceAll(body[m[2]:m[3]], "/", "-")
		clock := body[m[4]:m[5]]
		at, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
		if err != nil {
			return Command{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD HH:MM", date+" "+clock)
		}
		cmd.RemindAt = &at
		body = body[:m[0]] + " " + body[m[1]:]
	}

	cmd.Title = strings.TrimSpace(spaces.ReplaceAllString(body, " "))
	if cmd.Title == "" {
		return Command{}, fmt.Errorf("task title is empty, e.g. %s standup /at 2025-01-20 09:00", Prefix)
	}
	return cmd, nil
}

func cutPrefix(text string) (string, bool) {
	if len(text) < len(Prefix) || !strings.EqualFold(text[:len(Prefix)], Prefix) {
		return "", false
	}
	rest := text[len(Prefix):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
