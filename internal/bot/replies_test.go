package bot

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/app"
	"notekeeper/internal/model"
)

func TestRecordText(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	full := recordText(model.Record{Body: "buy milk", Name: "groceries", Tag: "home", CreatedAt: created})
	assert.Contains(t, full, "buy milk")
	assert.Contains(t, full, "Name: groceries")
	assert.Contains(t, full, "Tag: home")
	assert.Contains(t, full, "2025-03-01 12:30")

	nameless := recordText(model.Record{Body: "buy milk", Tag: model.NoTag, CreatedAt: created})
	assert.NotContains(t, nameless, "Name:")
}

func TestStatsText(t *testing.T) {
	got := statsText(app.Stats{Total: 7, DistinctTags: 2, MostPopular: &app.TagCount{Tag: "work", Count: 4}})
	assert.Contains(t, got, "Records: 7")
	assert.Contains(t, got, "Tags: 2")
	assert.Contains(t, got, "Most used tag: work (4)")

	empty := statsText(app.Stats{})
	assert.NotContains(t, empty, "Most used tag")
}

func TestChunkRecordsSplitsLongListings(t *testing.T) {
	long := strings.Repeat("x", 1200)
	var records []model.Record
	for i := 0; i < 6; i++ {
		records = append(records, model.Record{Body: long})
	}

	chunks := chunkRecords("header\n", records)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), maxChunk)
	}

	// Every record appears exactly once across the chunks.
	joined := strings.Join(chunks, "")
	assert.Equal(t, 6, strings.Count(joined, long))
}

func TestChunkRecordsBoundsOversizedEntry(t *testing.T) {
	header := "🔍 Records with tag 'work':\n"
	body := strings.Repeat("x", 4096)

	chunks := chunkRecords(header, []model.Record{{Body: body}})
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), maxChunk)
		assert.Greater(t, len(chunk), len(header), "no header-only page")
	}

	// The entry spills over page boundaries but nothing is lost.
	joined := strings.Join(chunks, "")
	assert.Equal(t, 1, strings.Count(joined, body))
	assert.True(t, strings.HasPrefix(joined, header))
}

func TestChunkRecordsSplitsOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("🙂", 1200)

	chunks := chunkRecords("header\n", []model.Record{{Body: body}})
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), maxChunk)
		assert.True(t, utf8.ValidString(chunk))
	}
}

func TestClampMessage(t *testing.T) {
	assert.Equal(t, "short", clampMessage("short"))

	clamped := clampMessage(strings.Repeat("x", maxChunk+500))
	assert.LessOrEqual(t, len(clamped), maxChunk)
	assert.True(t, strings.HasSuffix(clamped, ellipsis))

	clamped = clampMessage(strings.Repeat("🙂", 1000))
	assert.LessOrEqual(t, len(clamped), maxChunk)
	assert.True(t, utf8.ValidString(clamped))
	assert.True(t, strings.HasSuffix(clamped, ellipsis))
}

func TestChunkRecordsSingleChunk(t *testing.T) {
	chunks := chunkRecords("header\n", []model.Record{{Body: "short"}})
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "header")
	assert.Contains(t, chunks[0], "short")
}

func TestTagsKeyboardOrderingAndSentinel(t *testing.T) {
	counts := map[string]int64{
		"zeta":      1,
		"alpha":     3,
		model.NoTag: 9,
	}

	kb := tagsKeyboard(counts, true)

	var labels []string
	for _, row := range kb.Keyboard {
		for _, btn := range row {
			labels = append(labels, btn.Text)
		}
	}

	assert.Contains(t, labels, "alpha (3)")
	assert.Contains(t, labels, "zeta (1)")
	assert.Contains(t, labels, labelNewTag)
	assert.Contains(t, labels, labelCancel)
	for _, l := range labels {
		assert.NotContains(t, l, model.NoTag)
	}

	// Lexical order keeps the keyboard stable between renders.
	alphaIdx := indexOf(labels, "alpha (3)")
	zetaIdx := indexOf(labels, "zeta (1)")
	assert.Less(t, alphaIdx, zetaIdx)
}

func indexOf(labels []string, want string) int {
	for i, l := range labels {
		if l == want {
			return i
		}
	}
	return -1
}
