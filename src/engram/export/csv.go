package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// csvHeader is the fixed column set of the CSV export.
var csvHeader = []string{
	"id", "content", "category", "surprise", "importance",
	"accessCount", "createdAt", "version", "metadata",
}

// CSV renders records with RFC 4180 quoting; metadata is a JSON string.
func CSV(records []model.MemoryRecord) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, rec := range records {
		metadata := "{}"
		if rec.Metadata != nil {
			b, err := json.Marshal(rec.Metadata)
			if err != nil {
				return "", err
			}
			metadata = string(b)
		}
		row := []string{
			rec.ID,
			rec.Content,
			rec.Category,
			strconv.FormatFloat(rec.Surprise, 'g', -1, 64),
			strconv.FormatFloat(rec.Importance, 'g', -1, 64),
			strconv.Itoa(rec.AccessCount),
			strconv.FormatInt(rec.CreatedAt.UnixMilli(), 10),
			strconv.Itoa(rec.Version),
			metadata,
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ParseCSV reads a CSV export back into records.
func ParseCSV(text string) ([]model.MemoryRecord, error) {
	r := csv.NewReader(strings.NewReader(text))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var records []model.MemoryRecord
	for i, row := range rows {
		if i == 0 || len(row) < len(csvHeader) {
			continue
		}
		surprise, _ := strconv.ParseFloat(row[3], 64)
		importance, _ := strconv.ParseFloat(row[4], 64)
		accessCount, _ := strconv.Atoi(row[5])
		createdMS, _ := strconv.ParseInt(row[6], 10, 64)
		version, _ := strconv.Atoi(row[7])
		rec := model.MemoryRecord{
			ID:          row[0],
			Content:     row[1],
			Category:    row[2],
			Surprise:    surprise,
			Importance:  importance,
			AccessCount: accessCount,
			CreatedAt:   time.UnixMilli(createdMS).UTC(),
			Version:     version,
		}
		if row[8] != "" && row[8] != "{}" {
			_ = json.Unmarshal([]byte(row[8]), &rec.Metadata)
		}
		records = append(records, rec)
	}
	return records, nil
}
