package export

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Markdown renders a human-readable export: a header, a metadata
// blockquote, then per-category sections of bullet lines carrying the
// key metrics.
func Markdown(records []model.MemoryRecord, namespace string, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Engram Memory Export\n\n")
	fmt.Fprintf(&b, "> Exported %s | namespace: %s | %d memories\n\n",
		now.UTC().Format(time.RFC3339), namespace, len(records))

	byCategory := make(map[string][]model.MemoryRecord)
	for _, rec := range records {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		fmt.Fprintf(&b, "## %ss\n\n", titleCase(cat))
		for _, rec := range byCategory[cat] {
			ageDays := int(now.Sub(rec.CreatedAt).Hours() / 24)
			if ageDays < 0 {
				ageDays = 0
			}
			fmt.Fprintf(&b, "- **%s** — importance: %.2f, surprise: %.2f, age: %dd ago, accessed: %d×, v%d\n",
				rec.Content, rec.Importance, rec.Surprise, ageDays, rec.AccessCount, rec.Version)
		}
		b.WriteString("\n")
	}
	return b.String()
}

var markdownLine = regexp.MustCompile(
	`^- \*\*(.*)\*\* — importance: ([0-9.]+), surprise: ([0-9.]+), age: ([0-9]+)d ago, accessed: ([0-9]+)×, v([0-9]+)$`)

// ParseMarkdown recovers content, category and metrics from a Markdown
// export. Ids and embeddings are not representable in this format, so
// the caller assigns fresh ones.
func ParseMarkdown(text string, now time.Time) []model.MemoryRecord {
	var (
		records  []model.MemoryRecord
		category = model.DefaultCategory
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "## ") {
			category = strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(line, "## "), "s"))
			continue
		}
		m := markdownLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		importance, _ := strconv.ParseFloat(m[2], 64)
		surprise, _ := strconv.ParseFloat(m[3], 64)
		ageDays, _ := strconv.Atoi(m[4])
		accessCount, _ := strconv.Atoi(m[5])
		version, _ := strconv.Atoi(m[6])
		records = append(records, model.MemoryRecord{
			Content:     m[1],
			Category:    category,
			Importance:  importance,
			Surprise:    surprise,
			AccessCount: accessCount,
			CreatedAt:   now.UTC().AddDate(0, 0, -ageDays),
			Version:     version,
		})
	}
	return records
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
