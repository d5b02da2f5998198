package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegistryDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *time.Time
	}{
		{
			name:  "standard dotted date",
			input: "15.03.2024",
			want:  datePtr(2024, time.March, 15),
		},
		{
			name:  "slash separators",
			input: "15/03/2024",
			want:  datePtr(2024, time.March, 15),
		},
		{
			name:  "dash separators",
			input: "15-03-2024",
			want:  datePtr(2024, time.March, 15),
		},
		{
			name:  "two digit year",
			input: "01.01.24",
			want:  datePtr(2024, time.January, 1),
		},
		{
			name:  "surrounding whitespace",
			input: "  15.03.2024  ",
			want:  datePtr(2024, time.March, 15),
		},
		{name: "empty string", input: ""},
		{name: "not a date", input: "court decision"},
		{name: "missing part", input: "15.03"},
		{name: "month out of range", input: "15.13.2024"},
		{name: "day overflows month", input: "31.02.2024"},
		{name: "non numeric day", input: "aa.03.2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRegistryDate(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "want %v, got %v", tt.want, got)
		})
	}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
