// Command viewer inspects the session's on-disk state: the XML
// documents and, with -prefix, the raw transcript database. Read-only.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"im-session/storage"
	"im-session/transcript"
)

func main() {
	dataDir := flag.String("data", "", "Path to the session data directory")
	dbPath := flag.String("db", "", "Path to the transcript badger DB")
	prefix := flag.String("prefix", "msg:", "Transcript key prefix to scan")
	flag.Parse()

	dir := *dataDir
	if dir == "" {
		var err error
		dir, err = storage.DefaultDataDir("sessiond")
		if err != nil {
			log.Fatal("Error resolving data directory: ", err)
		}
	}

	printAccounts(filepath.Join(dir, storage.AccountsFile))
	printChatrooms(filepath.Join(dir, storage.ChatroomsFile))

	path := *dbPath
	if path == "" {
		path = filepath.Join(dir, "transcript")
	}
	if _, err := os.Stat(path); err == nil {
		printTranscript(path, *prefix)
	}
}

func printAccounts(path string) {
	accounts, defaultName, err := storage.LoadAccounts(path)
	if err != nil {
		color.Red.Printf("accounts: %v\n", err)
		return
	}
	color.Bold.Println("Accounts")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "ID", "Server", "Port", "Auto", "SSL", "Default"})
	table.SetBorder(false)
	for _, a := range accounts {
		isDefault := ""
		if a.Name == defaultName {
			isDefault = "*"
		}
		table.Append([]string{
			a.Name,
			a.ID,
			a.Server,
			fmt.Sprintf("%d", a.Port),
			yesNo(a.AutoConnect),
			yesNo(a.UseSSL),
			isDefault,
		})
	}
	table.Render()
}

func printChatrooms(path string) {
	rooms, defaultName, err := storage.LoadChatrooms(path)
	if err != nil {
		color.Red.Printf("chatrooms: %v\n", err)
		return
	}
	color.Bold.Println("Chatrooms")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Room", "Server", "Nick", "Auto", "Account", "Default"})
	table.SetBorder(false)
	for _, r := range rooms {
		isDefault := ""
		if r.Name == defaultName {
			isDefault = "*"
		}
		table.Append([]string{
			r.Name,
			r.Room,
			r.Server,
			r.Nick,
			yesNo(bool(r.AutoConnect)),
			r.Account,
			isDefault,
		})
	}
	table.Render()
}

func printTranscript(path, prefix string) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	color.Bold.Println("Transcript")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Conversation", "Author", "Dir", "Body"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var m transcript.StoredMessage
				if err := cbor.Unmarshal(v, &m); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(it.Item().Key()), err)
					return nil
				}
				dir := "out"
				if m.Incoming {
					dir = "in"
				}
				table.Append([]string{
					m.At.Format("15:04:05"),
					m.Conversation,
					m.Author,
					dir,
					m.Body,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
