package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any
type ConnectionsProvider func() any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only view of the store, the live
// connection table and the runtime counters on a separate port. Nothing
// here mutates state, it exists for operators chasing a counter drift or
// a stuck connection.
func StartDebugServer(
	db *badger.DB,
	port int,
	mapper RowMapper,
	statsProvider StatsProvider,
	connectionsProvider ConnectionsProvider,
) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = DefaultMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	mux.HandleFunc("/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var payload any
		if connectionsProvider != nil {
			payload = connectionsProvider()
		}
		_ = json.NewEncoder(w).Encode(payload)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats := map[string]any{}
		if statsProvider != nil {
			stats = statsProvider()
		}
		_ = json.NewEncoder(w).Encode(stats)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// DefaultMapper splits keys of the layout namespace:chat:timestamp:id,
// falling back to a raw row for keys that do not match.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	if len(parts) >= 4 {
		row.Namespace = parts[0]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).Format("15:04:05")
		}
		row.EntityID = parts[3]
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	} else if len(parts) >= 2 {
		row.Namespace = parts[0]
		row.EntityID = parts[1]
		if len(row.EntityID) > 8 {
			row.EntityID = row.EntityID[:8]
		}
	}
	return row
}
