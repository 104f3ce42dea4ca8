package errors

import "fmt"

var (
	ErrNotConnected      = fmt.Errorf("protocol is not connected")
	ErrAlreadyConnected  = fmt.Errorf("protocol is already connected or connecting")
	ErrInvalidAccount    = fmt.Errorf("invalid account parameters")
	ErrNoAccount         = fmt.Errorf("no account resolves this contact")
	ErrAccountNotFound   = fmt.Errorf("account not found")
	ErrContactNotFound   = fmt.Errorf("contact not found")
	ErrChatroomNotFound  = fmt.Errorf("chatroom not found")
	ErrInvalidSchema     = fmt.Errorf("persisted file failed schema validation")
	ErrSecretLocked      = fmt.Errorf("secret store cannot be opened with this passphrase")
	ErrRequestCanceled   = fmt.Errorf("request canceled")
	ErrTransportRequired = fmt.Errorf("protocol client requires a transport")
)
