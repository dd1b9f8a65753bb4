package bot

import (
	"fmt"
	"sort"

	"notekeeper/internal/model"
	"notekeeper/internal/platform/telegram"
)

func mainKeyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(
		labelViewRecords,
		labelSearchByTag,
		labelExtra,
	)
}

func extraKeyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(
		labelCreateBackup,
		labelRestoreBackup,
		labelStatistics,
		labelExport,
		labelDeleteAll,
		labelBack,
	)
}

func cancelKeyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(labelCancel)
}

// nameKeyboard offers Skip/Cancel, with the fetched page title as a
// one-tap suggestion when there is one.
func nameKeyboard(suggestedName string) *telegram.ReplyKeyboardMarkup {
	labels := []string{}
	if suggestedName != "" {
		labels = append(labels, suggestedName)
	}
	labels = append(labels, labelSkip, labelCancel)
	return replyKeyboard(labels...)
}

func tagChoiceKeyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(labelYes, labelNo)
}

func deleteAllConfirm1Keyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(labelDeleteAllYes1, labelDeleteAllNo1)
}

func deleteAllConfirm2Keyboard() *telegram.ReplyKeyboardMarkup {
	return replyKeyboard(labelDeleteAllYes2, labelDeleteAllNo2)
}

// tagsKeyboard lists existing tags as "tag (count)" rows, lexically
// ordered, the sentinel excluded. withNewTag adds the create row for the
// add flow.
func tagsKeyboard(counts map[string]int64, withNewTag bool) *telegram.ReplyKeyboardMarkup {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		if tag != model.NoTag {
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	labels := make([]string, 0, len(tags)+2)
	if withNewTag {
		labels = append(labels, labelNewTag)
	}
	for _, tag := range tags {
		labels = append(labels, fmt.Sprintf("%s (%d)", tag, counts[tag]))
	}
	labels = append(labels, labelCancel)
	return replyKeyboard(labels...)
}

func recordKeyboard(id uint64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "🗑 Delete", CallbackData: deleteCallbackData(id)},
				{Text: "✏️ Edit", CallbackData: editCallbackData(id)},
			},
		},
	}
}

func deleteConfirmInlineKeyboard(id uint64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "✅ Yes", CallbackData: confirmDeleteCallbackData(id)},
				{Text: "❌ No", CallbackData: cancelDeleteCallbackData(id)},
			},
		},
	}
}

func editFieldInlineKeyboard(id uint64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "Name", CallbackData: editFieldCallbackData("name", id)},
				{Text: "Text", CallbackData: editFieldCallbackData("body", id)},
				{Text: "Tag", CallbackData: editFieldCallbackData("tag", id)},
			},
		},
	}
}

func replyKeyboard(labels ...string) *telegram.ReplyKeyboardMarkup {
	rows := make([][]telegram.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, []telegram.KeyboardButton{{Text: label}})
	}
	return &telegram.ReplyKeyboardMarkup{
		Keyboard:       rows,
		ResizeKeyboard: true,
	}
}
