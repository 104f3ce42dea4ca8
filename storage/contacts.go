package storage

import (
	"encoding/xml"
	"fmt"

	imerrors "im-session/errors"
)

type contactsDoc struct {
	XMLName xml.Name            `xml:"contacts"`
	Entries []ContactAccountXML `xml:"account"`
}

// ContactAccountXML is one account's slice of the contact cache: the
// local user's display name plus the cached names of the roster.
type ContactAccountXML struct {
	Name     string       `xml:"name,attr"`
	Self     SelfXML      `xml:"self"`
	Contacts []ContactXML `xml:"contact"`
}

type SelfXML struct {
	Name string `xml:"name"`
}

type ContactXML struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name"`
}

// LoadContacts reads the name-only contact cache. Account references
// are by name; the caller resolves them through the AccountManager and
// skips entries that no longer resolve.
func LoadContacts(path string) ([]ContactAccountXML, error) {
	var doc contactsDoc
	found, err := unmarshalDoc(path, &doc)
	if err != nil || !found {
		return nil, err
	}
	for i, e := range doc.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: contact block %d is missing its account name", imerrors.ErrInvalidSchema, i)
		}
		for _, c := range e.Contacts {
			if c.ID == "" {
				return nil, fmt.Errorf("%w: contact without id under account %q", imerrors.ErrInvalidSchema, e.Name)
			}
		}
	}
	return doc.Entries, nil
}

func SaveContacts(path string, entries []ContactAccountXML) error {
	data, err := marshalDoc(contactsDoc{Entries: entries})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
