package bot

import (
	"strconv"
	"strings"

	"notekeeper/internal/platform/telegram"
)

// Menu labels shown on reply keyboards. Decoding happens once, here; the
// state machine never compares raw strings.
const (
	labelViewRecords   = "📋 View records"
	labelSearchByTag   = "🔍 Search by tag"
	labelExtra         = "⚙️ Extra"
	labelCreateBackup  = "📤 Create backup"
	labelRestoreBackup = "📥 Restore backup"
	labelStatistics    = "📊 Statistics"
	labelExport        = "📦 Export records"
	labelDeleteAll     = "🗑 Delete all"
	labelBack          = "🔙 Back"
	labelCancel        = "❌ Cancel"
	labelSkip          = "⏩ Skip"
	labelYes           = "Yes"
	labelNo            = "No"
	labelNewTag        = "Create new tag"
	labelDeleteAllYes1 = "✅ Yes, delete everything"
	labelDeleteAllNo1  = "❌ No, keep my records"
	labelDeleteAllYes2 = "✅ I confirm deletion"
	labelDeleteAllNo2  = "❌ Cancel deletion"

	// restoreConfirmPhrase must be typed exactly; a keyboard tap is not
	// enough for an operation that replaces the whole store.
	restoreConfirmPhrase = "RESTORE"
)

type EventKind int

const (
	KindCommandStart EventKind = iota + 1
	KindMenu
	KindText
	KindCallback
)

type MenuAction int

const (
	MenuNone MenuAction = iota
	MenuViewRecords
	MenuSearchByTag
	MenuExtra
	MenuCreateBackup
	MenuRestoreBackup
	MenuStatistics
	MenuExport
	MenuDeleteAll
	MenuBack
	MenuCancel
	MenuSkip
	MenuYes
	MenuNo
	MenuNewTag
	MenuDeleteAllConfirm1
	MenuDeleteAllConfirm2
)

var menuByLabel = map[string]MenuAction{
	labelViewRecords:   MenuViewRecords,
	labelSearchByTag:   MenuSearchByTag,
	labelExtra:         MenuExtra,
	labelCreateBackup:  MenuCreateBackup,
	labelRestoreBackup: MenuRestoreBackup,
	labelStatistics:    MenuStatistics,
	labelExport:        MenuExport,
	labelDeleteAll:     MenuDeleteAll,
	labelBack:          MenuBack,
	labelCancel:        MenuCancel,
	labelSkip:          MenuSkip,
	labelYes:           MenuYes,
	labelNo:            MenuNo,
	labelNewTag:        MenuNewTag,
	labelDeleteAllYes1: MenuDeleteAllConfirm1,
	labelDeleteAllYes2: MenuDeleteAllConfirm2,
}

type CallbackKind int

const (
	CallbackDelete CallbackKind = iota + 1
	CallbackConfirmDelete
	CallbackCancelDelete
	CallbackEdit
	CallbackEditName
	CallbackEditBody
	CallbackEditTag
)

var callbackPrefixes = []struct {
	prefix string
	kind   CallbackKind
}{
	// Longer prefixes first so confirm_del_ never matches as del_.
	{"confirm_del_", CallbackConfirmDelete},
	{"cancel_del_", CallbackCancelDelete},
	{"edit_name_", CallbackEditName},
	{"edit_body_", CallbackEditBody},
	{"edit_tag_", CallbackEditTag},
	{"edit_", CallbackEdit},
	{"del_", CallbackDelete},
}

type Callback struct {
	Kind        CallbackKind
	RecordID    uint64
	QueryID     string
	MessageID   int64
	MessageText string
}

// Event is the closed union the machine dispatches on.
type Event struct {
	ActorID  int64
	ChatID   int64
	Kind     EventKind
	Text     string
	Menu     MenuAction
	Callback *Callback
}

// DecodeUpdate classifies an inbound update. The second return is false
// for updates this service does not handle (stickers, photos, joins).
func DecodeUpdate(update *telegram.Update) (Event, bool) {
	if update == nil {
		return Event{}, false
	}

	if update.CallbackQuery != nil {
		cq := update.CallbackQuery
		// Callbacks from aged inline keyboards arrive without their
		// message; there is no chat to answer in and nothing to edit.
		if cq.Message == nil {
			return Event{}, false
		}
		cb, ok := parseCallback(cq.Data)
		if !ok {
			return Event{}, false
		}
		cb.QueryID = cq.ID
		cb.MessageID = cq.Message.MessageID
		cb.MessageText = cq.Message.Text

		return Event{
			ActorID:  cq.From.ID,
			ChatID:   cq.Message.Chat.ID,
			Kind:     KindCallback,
			Callback: &cb,
		}, true
	}

	if update.Message == nil || update.Message.From == nil {
		return Event{}, false
	}
	msg := update.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return Event{}, false
	}

	ev := Event{
		ActorID: msg.From.ID,
		ChatID:  msg.Chat.ID,
		Text:    text,
	}

	switch {
	case text == "/start":
		ev.Kind = KindCommandStart
	default:
		if action, ok := menuByLabel[text]; ok {
			ev.Kind = KindMenu
			ev.Menu = action
		} else {
			ev.Kind = KindText
		}
	}
	return ev, true
}

func parseCallback(data string) (Callback, bool) {
	for _, entry := range callbackPrefixes {
		if !strings.HasPrefix(data, entry.prefix) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(data, entry.prefix), 10, 64)
		if err != nil {
			return Callback{}, false
		}
		return Callback{Kind: entry.kind, RecordID: id}, true
	}
	return Callback{}, false
}

func deleteCallbackData(id uint64) string {
	return "del_" + strconv.FormatUint(id, 10)
}

func confirmDeleteCallbackData(id uint64) string {
	return "confirm_del_" + strconv.FormatUint(id, 10)
}

func cancelDeleteCallbackData(id uint64) string {
	return "cancel_del_" + strconv.FormatUint(id, 10)
}

func editCallbackData(id uint64) string {
	return "edit_" + strconv.FormatUint(id, 10)
}

func editFieldCallbackData(field string, id uint64) string {
	return "edit_" + field + "_" + strconv.FormatUint(id, 10)
}

// stripTagCount turns a "tag (3)" keyboard label back into the tag.
func stripTagCount(label string) string {
	if idx := strings.LastIndex(label, " ("); idx > 0 && strings.HasSuffix(label, ")") {
		return label[:idx]
	}
	return label
}
