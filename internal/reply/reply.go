// Package reply defines the normalized input context and output payload
// exchanged between channels and bots.
package reply

import "fmt"

// Type tags a Reply.
type Type string

const (
	TypeText     Type = "TEXT"
	TypeImageURL Type = "IMAGE_URL"
	TypeInfo     Type = "INFO"
	TypeError    Type = "ERROR"
)

// Reply is the single result of one Bot.Reply call.
type Reply struct {
	Type    Type   `json:"type"`
	Content string `json:"content"`
}

func (r Reply) String() string {
	return fmt.Sprintf("Reply(%s)=%s", r.Type, r.Content)
}

// Text, Info, Error and ImageURL build a Reply of the matching type.
func Text(content string) Reply     { return Reply{Type: TypeText, Content: content} }
func Info(content string) Reply     { return Reply{Type: TypeInfo, Content: content} }
func Error(content string) Reply    { return Reply{Type: TypeError, Content: content} }
func ImageURL(content string) Reply { return Reply{Type: TypeImageURL, Content: content} }

// ContextType is the kind of message a channel received.
type ContextType string

const (
	ContextText        ContextType = "TEXT"
	ContextImageCreate ContextType = "IMAGE_CREATE"
	ContextImage       ContextType = "IMAGE"
	ContextVoice       ContextType = "VOICE"
	ContextFile        ContextType = "FILE"
)

// Context is per-request metadata supplied by the calling channel.
// Model and APIKey are optional per-call overrides.
type Context struct {
	Type      ContextType `json:"type"`
	SessionID string      `json:"session_id"`
	Model     string      `json:"model,omitempty"`
	APIKey    string      `json:"api_key,omitempty"`
}
