package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kibibytes", 1536, "1.5 KiB"},
		{"mebibytes", 5242880, "5.0 MiB"},
		{"gibibytes", 1610612736, "1.5 GiB"},
		{"unknown", -1, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})

	t.Run("zero", func(t *testing.T) {
		assert.Equal(t, "-", formatTime(time.Time{}))
	})
}

func TestFormatListingTime(t *testing.T) {
	got := formatListingTime("2020-12-25 08:00:00+00:00")
	assert.Contains(t, got, "2020")
	assert.Contains(t, got, "Dec")

	assert.Equal(t, "yesterday-ish", formatListingTime("yesterday-ish"))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	headers := []string{"SIZE", "MODIFIED", "NAME"}
	rows := [][]string{
		{"1.2 MiB", "Jan 15 10:30", "file.txt"},
		{"-", "Feb  1 09:00", "folder/"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SIZE     MODIFIED      NAME", lines[0])
	assert.Equal(t, "1.2 MiB  Jan 15 10:30  file.txt", lines[1])
	assert.Equal(t, "-        Feb  1 09:00  folder/", lines[2])
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, printJSON(&buf, map[string]string{"task_id": "abc"}))
	assert.Equal(t, "{\n  \"task_id\": \"abc\"\n}\n", buf.String())
}

func TestTextOut_DiscardsInJSONMode(t *testing.T) {
	var buf bytes.Buffer

	cc := &CLIContext{Flags: CLIFlags{JSON: true}, Out: &buf}
	_, _ = cc.textOut().Write([]byte("report"))
	assert.Empty(t, buf.String())

	cc.Flags.JSON = false
	_, _ = cc.textOut().Write([]byte("report"))
	assert.Equal(t, "report", buf.String())
}
