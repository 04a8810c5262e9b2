package chat

import "fmt"

const (
	RoleUser      = "user"      // Player
	RoleAssistant = "assistant" // Narrator reply
	RoleSystem    = "system"    // Engine-injected context
)

// Message is a single message in the conversation sent to the model.
// The role/content structure matches what every supported provider accepts.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Reply is the raw result of one model invocation: the verbatim text plus
// the single top-level JSON object extracted from it (nil when none found).
type Reply struct {
	Raw  string                 `json:"raw"`
	JSON map[string]interface{} `json:"json,omitempty"`
}

func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAssistant && m.Role != RoleSystem {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if m.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	return nil
}
