package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is a knowledge document matched by a search.
type Entry struct {
	ID      string
	Content string
	Score   int
}

// Search returns documents mentioning at least one keyword, ordered by
// how many distinct keywords each contains, with ties broken by ID.
// Matching is case-insensitive. A missing store directory yields no
// results rather than an error.
func (s *Store) Search(keywords []string) ([]Entry, error) {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	if len(lowered) == 0 {
		return nil, nil
	}

	dirents, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge directory: %w", err)
	}

	var hits []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, de.Name()))
		if err != nil {
			continue
		}
		content := string(data)
		haystack := strings.ToLower(content)
		score := 0
		for _, kw := range lowered {
			if strings.Contains(haystack, kw) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Entry{
			ID:      strings.TrimSuffix(de.Name(), ".md"),
			Content: content,
			Score:   score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}
