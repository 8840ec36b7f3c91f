package model

// User is the display identity of a chat participant. It is a weak
// reference: resolved through the user directory, never owned by this
// subsystem.
type User struct {
	ID       string
	Name     string
	Email    string
	Avatar   string
	IsOnline bool
}

// Placeholder builds a provisional identity for a participant whose
// directory record has not been resolved yet. The short id prefix keeps
// the label readable while staying unique enough for a list view.
func Placeholder(userID string) User {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return User{
		ID:   userID,
		Name: "User " + prefix,
	}
}
