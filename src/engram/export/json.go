// Package export serializes memory sets to JSON, Markdown and CSV, and
// parses each format back.
package export

import (
	"encoding/json"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// FormatVersion is stamped into every JSON envelope.
const FormatVersion = "1.0"

// Envelope is the JSON export document.
type Envelope struct {
	Engram   Header               `json:"engram"`
	Memories []model.MemoryRecord `json:"memories"`
}

// Header carries export metadata.
type Header struct {
	Version    string   `json:"version"`
	ExportedAt string   `json:"exportedAt"`
	Namespace  string   `json:"namespace"`
	Count      int      `json:"count"`
	Categories []string `json:"categories"`
}

// JSON renders the lossless envelope.
func JSON(records []model.MemoryRecord, namespace string, categories []string, now time.Time) ([]byte, error) {
	doc := Envelope{
		Engram: Header{
			Version:    FormatVersion,
			ExportedAt: now.UTC().Format(time.RFC3339),
			Namespace:  namespace,
			Count:      len(records),
			Categories: categories,
		},
		Memories: records,
	}
	if doc.Memories == nil {
		doc.Memories = []model.MemoryRecord{}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ParseJSON reads an envelope back. Records keep their ids, so a
// JSON round-trip is lossless.
func ParseJSON(data []byte) (Envelope, error) {
	var doc Envelope
	if err := json.Unmarshal(data, &doc); err != nil {
		return Envelope{}, err
	}
	return doc, nil
}
