// ABOUTME: Activity data model shared by transports, the turn pipeline and dialogs
// ABOUTME: Mirrors the Bot Framework activity wire shape for JSON persistence

package activity

import (
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the kind of activity.
type Type string

// Activity types
const (
	TypeMessage            Type = "message"
	TypeEvent              Type = "event"
	TypeInvoke             Type = "invoke"
	TypeTyping             Type = "typing"
	TypeConversationUpdate Type = "conversationUpdate"
	TypeEndOfConversation  Type = "endOfConversation"
	TypeDelay              Type = "delay"
	TypeMessageUpdate      Type = "messageUpdate"
	TypeMessageDelete      Type = "messageDelete"
)

// InputHint tells the channel whether the bot expects a reply.
type InputHint string

const (
	InputHintAccepting InputHint = "acceptingInput"
	InputHintExpecting InputHint = "expectingInput"
	InputHintIgnoring  InputHint = "ignoringInput"
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Attachment is a file or card carried by a message.
type Attachment struct {
	ContentType string `json:"contentType"`
	ContentURL  string `json:"contentUrl,omitempty"`
	Content     any    `json:"content,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ResourceResponse is the transport's acknowledgement of a sent activity.
type ResourceResponse struct {
	ID string `json:"id"`
}

// Activity is a single conversational event.
type Activity struct {
	Type         Type                 `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    time.Time            `json:"timestamp,omitzero"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Text         string               `json:"text,omitempty"`
	Speak        string               `json:"speak,omitempty"`
	InputHint    InputHint            `json:"inputHint,omitempty"`
	Locale       string               `json:"locale,omitempty"`
	Name         string               `json:"name,omitempty"`
	Value        any                  `json:"value,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
	ChannelData  json.RawMessage      `json:"channelData,omitempty"`
}

// NewMessage returns a message activity carrying text.
func NewMessage(text string) *Activity {
	return &Activity{Type: TypeMessage, Text: text}
}

// NewEvent returns a named event activity.
func NewEvent(name string, value any) *Activity {
	return &Activity{Type: TypeEvent, Name: name, Value: value}
}

// Clone returns a copy of the activity. Accounts and attachments are copied;
// Value and attachment content are shared.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	c := *a
	if a.From != nil {
		from := *a.From
		c.From = &from
	}
	if a.Recipient != nil {
		rcpt := *a.Recipient
		c.Recipient = &rcpt
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		c.Conversation = &conv
	}
	if a.Attachments != nil {
		c.Attachments = append([]Attachment(nil), a.Attachments...)
	}
	if a.ChannelData != nil {
		c.ChannelData = append(json.RawMessage(nil), a.ChannelData...)
	}
	return &c
}

// IsMessage reports whether the activity is a message.
func (a *Activity) IsMessage() bool {
	return a != nil && a.Type == TypeMessage
}

// IsEvent reports whether the activity is an event with the given name.
func (a *Activity) IsEvent(name string) bool {
	return a != nil && a.Type == TypeEvent && a.Name == name
}

// ConversationID returns the conversation id, or "" when absent.
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// FromID returns the sender id, or "" when absent.
func (a *Activity) FromID() string {
	if a == nil || a.From == nil {
		return ""
	}
	return a.From.ID
}

// TrimmedText returns the message text without surrounding whitespace.
func (a *Activity) TrimmedText() string {
	if a == nil {
		return ""
	}
	return strings.TrimSpace(a.Text)
}
