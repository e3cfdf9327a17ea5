// ABOUTME: Telegram update payload types and conversion into intake events.
// ABOUTME: Splits bot commands from free text and normalizes @botname suffixes.

// Package telegram is the inbound/outbound transport for the Telegram Bot
// API: webhook decoding on the way in, sendMessage on the way out. It knows
// nothing about the dialogue; it converts updates into intake events and
// delivers the service's replies.
package telegram

import (
	"strconv"
	"strings"

	"github.com/OGJRx/intake-gateway/internal/intake"
)

// Update is one webhook delivery from the Bot API. Only message updates are
// handled; everything else is acknowledged and dropped.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
}

// User is the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// commandAliases maps platform command names onto the intake commands. The
// Spanish names are kept for users of the original shop bot.
var commandAliases = map[string]string{
	"agendar": "schedule",
	"estado":  "status",
	"cotizar": "quote",
}

// EventFromUpdate converts an update into an intake event. The second return
// is false when the update carries nothing the intake service can act on
// (edits, joins, stickers, messages without a sender).
func EventFromUpdate(u *Update) (intake.Event, bool) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return intake.Event{}, false
	}

	ev := intake.Event{
		UserID:    strconv.FormatInt(msg.From.ID, 10),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		FirstName: msg.From.FirstName,
	}

	if strings.HasPrefix(msg.Text, "/") {
		command, args := splitCommand(msg.Text)
		ev.Command = command
		ev.Args = args
	} else {
		ev.Text = msg.Text
	}
	return ev, true
}

// splitCommand parses "/quote@shopbot need brakes" into ("quote", "need brakes").
func splitCommand(text string) (command, args string) {
	command = strings.TrimPrefix(text, "/")
	if i := strings.IndexAny(command, " \n"); i >= 0 {
		args = strings.TrimSpace(command[i+1:])
		command = command[:i]
	}
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	command = strings.ToLower(command)
	if alias, ok := commandAliases[command]; ok {
		command = alias
	}
	return command, args
}
