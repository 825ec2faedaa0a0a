package agentruntime

import (
	"fmt"
	"strings"
	"sync"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCallRequest is a single tool invocation requested by the model. Arguments holds the raw JSON
// object text exactly as the model produced it.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one conversation entry. Messages are values; once appended to a MessageList they are
// never modified.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func ToolMessage(content string, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// AssistantToolCallMessage is the assistant turn that requested tools. Content may be empty.
func AssistantToolCallMessage(content string, calls []ToolCallRequest) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: append([]ToolCallRequest(nil), calls...),
	}
}

// MessageList holds the ordered history of a session. It is append-only.
type MessageList struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMessageList(msgs ...Message) *MessageList {
	ml := &MessageList{messages: []Message{}}
	ml.Append(msgs...)
	return ml
}

func (ml *MessageList) Len() int {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return len(ml.messages)
}

// Append adds one or more messages to the end of the list in the given order.
func (ml *MessageList) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	for _, msg := range msgs {
		msg.ToolCalls = append([]ToolCallRequest(nil), msg.ToolCalls...)
		ml.messages = append(ml.messages, msg)
	}
}

// Snapshot returns a copy of the current history. Callers may keep or modify the returned slice
// without affecting the list.
func (ml *MessageList) Snapshot() []Message {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	out := make([]Message, len(ml.messages))
	copy(out, ml.messages)
	return out
}

func (ml *MessageList) Last() (Message, bool) {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	if len(ml.messages) == 0 {
		return Message{}, false
	}
	return ml.messages[len(ml.messages)-1], true
}

// String renders the history for debugging.
func (ml *MessageList) String() string {
	var b strings.Builder
	for _, msg := range ml.Snapshot() {
		fmt.Fprintf(&b, "Role: %s\nContent: %s\n", msg.Role, msg.Content)
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "- Function: %s\n  Arguments: %s\n", call.Name, call.Arguments)
		}
		if msg.ToolCallID != "" {
			fmt.Fprintf(&b, "Tool call: %s\n", msg.ToolCallID)
		}
		b.WriteString("\n")
	}
	return b.String()
}
