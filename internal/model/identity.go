package model

// Identity is the dual optimistic/authoritative identity of a message.
// Two records denote the same logical message iff they share a non-empty
// server ID or a non-empty local ID.
type Identity struct {
	ID      string
	LocalID string
}

// Same reports whether the two identities denote the same logical message.
func (a Identity) Same(b Identity) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	if a.LocalID != "" && a.LocalID == b.LocalID {
		return true
	}
	return false
}

// Identity returns the message's identity value.
func (m *Message) Identity() Identity {
	return Identity{ID: m.ID, LocalID: m.LocalID}
}
