package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the chat session log. It is never mutated once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Tools     []string  `json:"tools,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reply is the normalized answer returned by the backend for one query.
type Reply struct {
	Answer    string   `json:"answer"`
	ToolsUsed []string `json:"toolsUsed"`
	Success   bool     `json:"success"`
}

// UniqueTools drops duplicate and blank tool names, keeping first-seen order.
func UniqueTools(tools []string) []string {
	if len(tools) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(tools))
	out := make([]string, 0, len(tools))
	for _, name := range tools {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
