package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/nudge/internal/models"
)

func TestParseLocalTime(t *testing.T) {
	got, err := parseLocalTime(" 2025-05-02 08:30 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.May, 2, 8, 30, 0, 0, time.Local), *got)

	_, err = parseLocalTime("tomorrow")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "日本語日...", truncate("日本語日本語日本語", 7))
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	printTasks(&buf, nil)
	assert.Equal(t, "No tasks found\n", buf.String())

	buf.Reset()
	at := time.Date(2025, time.May, 2, 8, 30, 0, 0, time.Local)
	printTasks(&buf, []models.Task{
		{ID: "0123456789abcdef", Title: "standup", Status: models.TaskStatusPending, RemindAt: &at, Recurrence: models.RecurrenceWorkday},
	})
	out := buf.String()
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789")
	assert.Contains(t, out, "2025-05-02 08:30")
	assert.Contains(t, out, "workday")
}

func TestCurrentOwner(t *testing.T) {
	t.Setenv("NUDGE_OWNER", "carol")
	assert.Equal(t, "carol", currentOwner(nil))

	ownerFlag = "dave"
	defer func() { ownerFlag = "" }()
	assert.Equal(t, "dave", currentOwner(nil))
}
