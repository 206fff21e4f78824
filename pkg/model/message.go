package model

import (
	"strings"
)

// Role is the author of a conversation message.
type Role string

// Message roles
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage is shorthand for a user-authored Message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Transcript renders messages as "role: content" lines.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// EventType is the kind of change the reconciliation pipeline applied.
type EventType string

// Event types
const (
	EventAdd    EventType = "ADD"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventNone   EventType = "NONE"
)

// MemoryEvent reports one change made to the store.
type MemoryEvent struct {
	ID    string    `json:"id"`
	Event EventType `json:"event"`

	// Memory is the new content for ADD/UPDATE and the removed content for DELETE
	Memory string `json:"memory"`

	// PreviousMemory is set for UPDATE
	PreviousMemory string `json:"previous_memory,omitempty"`
}
