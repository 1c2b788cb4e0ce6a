package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Offline browser for the message store. Opens the Badger directory
// read-only and renders one table per prefix scan, so counters and
// message rows can be checked without going through the server.
func main() {
	dbPath := flag.String("db", "/tmp/market-live/badger", "Path to badger DB")
	// Messages by default; unread:, notif:, chat: and member: are the
	// other interesting namespaces.
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Namespace", "Timestamp", "Entity ID", "Detail", "Key"})
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

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				table.Append(rowFor(key, v))
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	color.Cyan.Printf("Scanned prefix %q: %d entries\n\n", *prefix, count)
	table.Render()
}

func rowFor(key string, val []byte) []string {
	parts := strings.Split(key, ":")
	namespace := parts[0]
	timestamp := "--:--:--"
	entityID := "--------"
	detail := "Size: " + strconv.Itoa(len(val)) + " bytes"

	switch namespace {
	case "msg":
		// msg:{chat}:{nanos}:{uuid}
		if len(parts) == 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			entityID = shorten(parts[3])
			detail = bodyPreview(val)
		}
	case "unread", "clear":
		// unread:{chat}:{user}
		if len(parts) == 3 {
			entityID = shorten(parts[2])
			detail = string(val)
		}
	case "notif":
		// notif:{user}:{nanos}:{uuid}
		if len(parts) == 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				timestamp = time.Unix(0, tsNano).Format("15:04:05")
			}
			entityID = shorten(parts[3])
			detail = kindPreview(val)
		}
	case "chat", "user", "direct", "member":
		if len(parts) >= 2 {
			entityID = shorten(parts[1])
		}
	}

	return []string{colorize(namespace), timestamp, entityID, detail, key}
}

func colorize(namespace string) string {
	switch namespace {
	case "msg":
		return color.Green.Sprint(namespace)
	case "unread":
		return color.Yellow.Sprint(namespace)
	case "notif":
		return color.Magenta.Sprint(namespace)
	default:
		return namespace
	}
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func bodyPreview(val []byte) string {
	var record struct {
		SenderID string `json:"sender_id"`
		Body     string `json:"body"`
	}
	if err := json.Unmarshal(val, &record); err != nil {
		return fmt.Sprintf("unreadable: %v", err)
	}
	body := record.Body
	if len(body) > 40 {
		body = body[:40] + "..."
	}
	return fmt.Sprintf("%s: %s", shorten(record.SenderID), body)
}

func kindPreview(val []byte) string {
	var record struct {
		Kind   string     `json:"kind"`
		ReadAt *time.Time `json:"read_at"`
	}
	if err := json.Unmarshal(val, &record); err != nil {
		return fmt.Sprintf("unreadable: %v", err)
	}
	state := "unread"
	if record.ReadAt != nil {
		state = "read"
	}
	return fmt.Sprintf("%s (%s)", record.Kind, state)
}

func openDB(path string) (*badger.DB, error) {
	options := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR)
	return badger.Open(options)
}
