package storage

import (
	"encoding/xml"
	"fmt"

	imerrors "im-session/errors"
)

type chatroomsDoc struct {
	XMLName xml.Name      `xml:"chatrooms"`
	Default string        `xml:"default"`
	Entries []ChatroomXML `xml:"chatroom"`
}

// ChatroomXML is one persisted favorite room. Only favorites are ever
// written; transient rooms live and die with the session.
type ChatroomXML struct {
	Name        string `xml:"name"`
	Nick        string `xml:"nick"`
	Server      string `xml:"server"`
	Room        string `xml:"room"`
	Password    string `xml:"password"`
	AutoConnect YesNo  `xml:"auto_connect"`
	Account     string `xml:"account"`
}

// LoadChatrooms reads the favorites file and the persisted default
// room name.
func LoadChatrooms(path string) ([]ChatroomXML, string, error) {
	var doc chatroomsDoc
	found, err := unmarshalDoc(path, &doc)
	if err != nil || !found {
		return nil, "", err
	}
	for i, e := range doc.Entries {
		if e.Server == "" || e.Room == "" {
			return nil, "", fmt.Errorf("%w: chatroom %d is missing server or room", imerrors.ErrInvalidSchema, i)
		}
	}
	return doc.Entries, doc.Default, nil
}

func SaveChatrooms(path string, entries []ChatroomXML, defaultName string) error {
	data, err := marshalDoc(chatroomsDoc{Default: defaultName, Entries: entries})
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}
