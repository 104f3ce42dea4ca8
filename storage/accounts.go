package storage

import (
	"encoding/xml"
	"fmt"

	"im-session/domain"
	imerrors "im-session/errors"
)

type accountsDoc struct {
	XMLName xml.Name     `xml:"accounts"`
	Default string       `xml:"default"`
	Entries []accountXML `xml:"account"`
}

type accountXML struct {
	Name        string  `xml:"name"`
	ID          string  `xml:"id"`
	Resource    string  `xml:"resource"`
	Password    *string `xml:"password"`
	Server      string  `xml:"server"`
	Port        int     `xml:"port"`
	AutoConnect YesNo   `xml:"auto_connect"`
	UseSSL      YesNo   `xml:"use_ssl"`
	UseProxy    YesNo   `xml:"use_proxy"`
}

// LoadAccounts reads accounts.xml and returns the accounts plus the
// persisted default account name. A missing file yields an empty set.
func LoadAccounts(path string) ([]*domain.Account, string, error) {
	var doc accountsDoc
	found, err := unmarshalDoc(path, &doc)
	if err != nil || !found {
		return nil, "", err
	}
	if err := validateAccounts(doc); err != nil {
		return nil, "", err
	}

	accounts := make([]*domain.Account, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		a := &domain.Account{
			Name:        e.Name,
			ID:          e.ID,
			Resource:    e.Resource,
			Server:      e.Server,
			Port:        e.Port,
			AutoConnect: bool(e.AutoConnect),
			UseSSL:      bool(e.UseSSL),
			UseProxy:    bool(e.UseProxy),
		}
		if e.Password != nil {
			a.Password = *e.Password
		}
		accounts = append(accounts, a)
	}
	return accounts, doc.Default, nil
}

// validateAccounts is the structural check performed before a file is
// trusted, standing in for the DTD the format historically carried.
func validateAccounts(doc accountsDoc) error {
	for i, e := range doc.Entries {
		if e.Name == "" || e.ID == "" {
			return fmt.Errorf("%w: account %d is missing name or id", imerrors.ErrInvalidSchema, i)
		}
	}
	return nil
}

// SaveAccounts writes accounts.xml. When omitPasswords is set (an
// external secret store holds the credentials) the password element is
// left out of the file entirely.
func SaveAccounts(path string, accounts []*domain.Account, defaultName string, omitPasswords bool) error {
	doc := accountsDoc{Default: defaultName}
	for _, a := range accounts {
		e := accountXML{
			Name:        a.Name,
			ID:          a.ID,
			Resource:    a.Resource,
			Server:      a.Server,
			Port:        a.Port,
			AutoConnect: YesNo(a.AutoConnect),
			UseSSL:      YesNo(a.UseSSL),
			UseProxy:    YesNo(a.UseProxy),
		}
		if !omitPasswords {
			password := a.Password
			e.Password = &password
		}
		doc.Entries = append(doc.Entries, e)
	}
	data, err := marshalDoc(doc)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
