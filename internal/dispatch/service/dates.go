package service

import (
	"strconv"
	"strings"
	"time"
)

// parseRegistryDate parses the registry's DD.MM.YYYY date strings. Slash and
// dash separators occur in scraped metadata and are accepted; two-digit years
// are taken as 20xx. Returns nil for empty or unparsable input.
func parseRegistryDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	normalized := strings.NewReplacer("/", ".", "-", ".").Replace(s)
	parts := strings.Split(normalized, ".")
	if len(parts) != 3 {
		return nil
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// Reject overflow dates like 31.02 that normalize into the next month.
	if t.Day() != day || t.Month() != time.Month(month) {
		return nil
	}
	return &t
}
