package storage

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// YesNo serializes booleans the way the persisted files always have:
// "yes" / "no" elements.
type YesNo bool

func (b YesNo) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	v := "no"
	if b {
		v = "yes"
	}
	return e.EncodeElement(v, start)
}

func (b *YesNo) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var v string
	if err := d.DecodeElement(&v, &start); err != nil {
		return err
	}
	switch v {
	case "yes", "true", "1":
		*b = true
	default:
		*b = false
	}
	return nil
}

// writeFileAtomic writes via a temp file in the same directory and
// renames into place, with owner-only permissions regardless of umask.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func marshalDoc(doc any) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}

// unmarshalDoc reads and decodes one persisted document. The returned
// bool is false when the file does not exist. A root element mismatch
// or malformed XML comes back as an error; encoding/xml enforces the
// expected root element for us.
func unmarshalDoc(path string, doc any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := xml.Unmarshal(data, doc); err != nil {
		return false, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
