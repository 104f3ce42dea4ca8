// Package domain contains core concepts of the messaging session.
// This file defines Account entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Account is one configured messaging identity: credentials plus the
// parameters needed to reach its server. Accounts are owned exclusively
// by the AccountManager; every other component holds a non-owning
// reference that must be re-resolved through the manager.
type Account struct {
	Name        string
	ID          string `validate:"required,contains=@"`
	Password    string
	Resource    string
	Server      string
	Port        int `validate:"gte=0,lte=65535"`
	AutoConnect bool
	UseSSL      bool
	UseProxy    bool
}

// Validate reports configuration errors synchronously, before the
// account is handed to a manager or a protocol.
func (a *Account) Validate() error {
	return validate.Struct(a)
}

// Equal reports whether two accounts are the same entity. Name is the
// managed identity: the AccountManager guarantees it is unique.
func (a *Account) Equal(other *Account) bool {
	return other != nil && a.Name == other.Name
}

// Host returns the host part of the account ID (user@host).
func (a *Account) Host() string {
	if i := strings.IndexByte(a.ID, '@'); i >= 0 {
		return a.ID[i+1:]
	}
	return a.ID
}

// Username returns the local part of the account ID.
func (a *Account) Username() string {
	if i := strings.IndexByte(a.ID, '@'); i >= 0 {
		return a.ID[:i]
	}
	return a.ID
}
