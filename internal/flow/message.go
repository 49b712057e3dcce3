package flow

// Role is who produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one turn of the conversation log.
type Message struct {
	Role    Role
	Content string
}
