package domain

// PresenceState is the availability advertised by one resource of a contact.
type PresenceState int

const (
	PresenceOffline PresenceState = iota
	PresenceAvailable
	PresenceChat
	PresenceAway
	PresenceXA
	PresenceDND
)

func (s PresenceState) String() string {
	switch s {
	case PresenceAvailable:
		return "available"
	case PresenceChat:
		return "chat"
	case PresenceAway:
		return "away"
	case PresenceXA:
		return "xa"
	case PresenceDND:
		return "dnd"
	default:
		return "offline"
	}
}

// Presence is one resource's advertised availability. A contact keeps
// its presences ordered by Priority, highest first; the top entry is
// the one shown to the user.
type Presence struct {
	Resource string
	State    PresenceState
	Priority int
	Status   string
}
