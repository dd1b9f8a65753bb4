package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"notekeeper/internal/model"

	"notekeeper/internal/app"
)

// User-facing texts. Kept together so the voice of the bot stays in one
// place.
const (
	msgWelcome = "👋 Hi! I keep your notes and links. Send me any text to save it, or pick an action:"
	msgDenied  = "Sorry, you don't have access to this bot."

	msgCancelled    = "Action cancelled. Pick an action:"
	msgUseButtons   = "Please use the buttons, or send text to save a new record."
	msgTryLater     = "❌ Something went wrong. Please try again later."
	msgAskName      = "Enter a name for the record\n(or press «⏩ Skip» to continue without one):"
	msgAskTagChoice = "Add a tag?"
	msgAskTagPick   = "Pick an existing tag or create a new one:"
	msgAskNewTag    = "Enter the new tag:"
	msgSavedNoTag   = "✅ Saved without a tag!"
	msgSavedNewTag  = "✅ Saved with a new tag!"
	msgSavedOldTag  = "✅ Saved with an existing tag!"
	msgDuplicate    = "❌ This record already exists!"
	msgNoRecords    = "📭 You have no saved records yet."
	msgNoTags       = "📭 You have no tags yet."
	msgPickTag      = "Pick a tag to search:"

	msgDeleteAllWarn1 = "⚠️ WARNING!\n\nYou are about to delete ALL saved records.\nThis cannot be undone.\n\nDo you really want to delete everything?"
	msgDeleteAllWarn2 = "⚠️ Last warning!\n\nAre you absolutely sure you want to delete ALL records?\nThis cannot be undone!"
	msgDeleteAllDone  = "🗑 All records deleted!"
	msgDeleteAborted  = "↩️ Deletion cancelled."

	msgRestoreWarn  = "⚠️ Restoring replaces ALL current records with the latest backup.\n\nType RESTORE (exactly) to continue:"
	msgRestoreRun   = "⏳ Restore is running in the background. I'll report here when it finishes."
	msgRestoreAbort = "↩️ Restore cancelled."

	msgBackupRun = "⏳ Backup is running in the background. I'll report here when it finishes."

	msgPickNext = "Pick the next action:"

	msgAskEditName = "Enter the new name:"
	msgAskEditBody = "Enter the new text:"
	msgAskEditTag  = "Enter the new tag:"
	msgEdited      = "✅ Record updated!"
)

// maxChunk keeps multi-record listings under the transport's message size.
const maxChunk = 3500

func recordText(r model.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📝 %s\n", r.Body)
	if r.Name != "" {
		fmt.Fprintf(&b, "📋 Name: %s\n", r.Name)
	}
	fmt.Fprintf(&b, "🏷 Tag: %s\n", r.Tag)
	fmt.Fprintf(&b, "⏰ %s", r.CreatedAt.Format("2006-01-02 15:04"))
	return b.String()
}

func statsText(stats app.Stats) string {
	var b strings.Builder
	b.WriteString("📊 Statistics\n\n")
	fmt.Fprintf(&b, "Records: %d\n", stats.Total)
	fmt.Fprintf(&b, "Tags: %d\n", stats.DistinctTags)
	if stats.MostPopular != nil {
		fmt.Fprintf(&b, "Most used tag: %s (%d)", stats.MostPopular.Tag, stats.MostPopular.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// chunkRecords renders tagged search results into transport-sized pages.
func chunkRecords(header string, records []model.Record) []string {
	var chunks []string
	var b strings.Builder
	b.WriteString(header)

	// Only the first page carries the header; a page holding nothing but
	// the header is never emitted.
	base := len(header)
	flush := func() {
		chunks = append(chunks, b.String())
		b.Reset()
		base = 0
	}

	for i, r := range records {
		entry := fmt.Sprintf("\n%d. %s\n", i+1, r.Body)
		if r.Name != "" {
			entry += fmt.Sprintf("📋 Name: %s\n", r.Name)
		}
		entry += fmt.Sprintf("⏰ %s\n", r.CreatedAt.Format("2006-01-02 15:04"))

		if b.Len()+len(entry) > maxChunk && b.Len() > base {
			flush()
		}
		// A body near the 4096-char maximum does not fit a page even
		// alone, so the entry itself spills over page boundaries.
		for b.Len()+len(entry) > maxChunk {
			cut := splitIndex(entry, maxChunk-b.Len())
			b.WriteString(entry[:cut])
			flush()
			entry = entry[cut:]
		}
		b.WriteString(entry)
	}
	if b.Len() > base {
		flush()
	}
	return chunks
}

const ellipsis = "…"

// clampMessage truncates a single outbound message to the page size,
// marking the cut with an ellipsis.
func clampMessage(s string) string {
	if len(s) <= maxChunk {
		return s
	}
	return s[:splitIndex(s, maxChunk-len(ellipsis))] + ellipsis
}

// splitIndex returns the largest byte offset not above limit that falls on
// a rune boundary.
func splitIndex(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return limit
}
