package event

// Command is an outbound frame. Implementations are plain structs whose
// Type field is fixed by their constructor, so callers can never emit a
// frame the server does not understand.
type Command interface {
	// CommandType returns the wire type discriminator of the frame.
	CommandType() string
}

// Interface guards
var (
	_ Command = (*JoinCommand)(nil)
	_ Command = (*PingCommand)(nil)
	_ Command = (*JoinConversationCommand)(nil)
	_ Command = (*TypingCommand)(nil)
)

// UserInfo is the display identity carried by a join command.
type UserInfo struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

// JoinCommand announces the local user to the server after the transport
// opens. It is the first frame of every session.
type JoinCommand struct {
	Type     string   `json:"type"`
	UserID   string   `json:"userId"`
	UserInfo UserInfo `json:"userInfo"`
}

func NewJoin(userID string, info UserInfo) *JoinCommand {
	return &JoinCommand{Type: TypeJoin, UserID: userID, UserInfo: info}
}

func (c *JoinCommand) CommandType() string { return c.Type }

// PingCommand is the heartbeat frame.
type PingCommand struct {
	Type string `json:"type"`
}

func NewPing() *PingCommand { return &PingCommand{Type: TypePing} }

func (c *PingCommand) CommandType() string { return c.Type }

// JoinConversationCommand subscribes the session to a conversation's typing
// and read-state events.
type JoinConversationCommand struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

func NewJoinConversation(conversationID string) *JoinConversationCommand {
	return &JoinConversationCommand{Type: TypeJoinConversation, ConversationID: conversationID}
}

func (c *JoinConversationCommand) CommandType() string { return c.Type }

// TypingCommand signals the local user starting or stopping typing in a
// conversation.
type TypingCommand struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

func NewTypingStart(conversationID string) *TypingCommand {
	return &TypingCommand{Type: TypeTypingStart, ConversationID: conversationID}
}

func NewTypingStop(conversationID string) *TypingCommand {
	return &TypingCommand{Type: TypeTypingStop, ConversationID: conversationID}
}

func (c *TypingCommand) CommandType() string { return c.Type }
