package domain

// VCard carries the identity card a contact publishes. Rendering is the
// UI's concern; the session only stores and forwards it.
type VCard struct {
	Name        string
	Nickname    string
	Email       string
	URL         string
	Telephone   string
	Description string
}
