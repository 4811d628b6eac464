package main

import (
	"educonnect/repositories"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// badger_inspect dumps the chat records under a prefix: msg:, room:id: or user:id:.
// Secondary index keys only hold a pointer and are shown as such.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes) && rows < *limit; it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				return nil
			})
			if err != nil {
				return err
			}
			rows++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d row(s) under %q\n", rows, *prefix)
}

func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var m repositories.DiskMessage
		if json.Unmarshal(value, &m) != nil {
			return pointer(key, value)
		}
		return []string{key, "MESSAGE", m.At.Format(time.DateTime), short(m.ID.String()),
			fmt.Sprintf("%s (%s): %s", m.Author, m.AuthorRole, m.Content)}
	case strings.HasPrefix(key, "room:id:"):
		var r repositories.DiskRoom
		if json.Unmarshal(value, &r) != nil {
			return pointer(key, value)
		}
		return []string{key, strings.ToUpper(r.Type), r.CreatedAt.Format(time.DateTime), short(r.ID),
			fmt.Sprintf("%s %v", r.Name, r.Participants)}
	case strings.HasPrefix(key, "user:id:"):
		var u repositories.DiskUser
		if json.Unmarshal(value, &u) != nil {
			return pointer(key, value)
		}
		return []string{key, strings.ToUpper(u.Role), u.CreatedAt.Format(time.DateTime), short(u.ID),
			fmt.Sprintf("%s <%s> approved=%t", u.Username, u.Email, u.IsApproved)}
	}
	return pointer(key, value)
}

func pointer(key string, value []byte) []string {
	return []string{key, "INDEX", "", "", "-> " + string(value)}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
