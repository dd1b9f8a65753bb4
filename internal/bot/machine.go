package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"notekeeper/internal/app"
	"notekeeper/internal/model"
	"notekeeper/internal/platform/telegram"
	"notekeeper/internal/repository"
	"notekeeper/internal/session"
)

// Sender is the outbound chat transport contract.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, replyMarkup *telegram.InlineKeyboardMarkup) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	SendDocument(ctx context.Context, chatID int64, filename string, content []byte, caption string) error
}

// Records is the slice of the record service the machine drives.
type Records interface {
	Save(ctx context.Context, ownerID int64, body, tag, name string) (uint64, error)
	List(ctx context.Context, ownerID int64) ([]model.Record, error)
	Get(ctx context.Context, ownerID int64, id uint64) (*model.Record, error)
	ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error)
	TagCounts(ctx context.Context, ownerID int64) (map[string]int64, error)
	UpdateField(ctx context.Context, ownerID int64, id uint64, field repository.Field, value string) error
	Delete(ctx context.Context, ownerID int64, id uint64) error
	DeleteAll(ctx context.Context, ownerID int64) error
	Export(ctx context.Context, ownerID int64) ([]repository.ExportedRecord, error)
	Stats(ctx context.Context, ownerID int64) (app.Stats, error)
}

// BackupRunner triggers the backup coordinator; results come back through
// the notice queue, not the return values of chat handlers.
type BackupRunner interface {
	BackupNow(ctx context.Context, kind model.BackupKind) (string, error)
	RestoreLatest(ctx context.Context) error
}

// TitleFetcher suggests a name for link bodies. Optional.
type TitleFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Machine drives the per-owner conversation. Handler boundaries convert
// every component error into a user-facing message plus a log line;
// nothing propagates past HandleUpdate.
type Machine struct {
	gate     *Gate
	records  Records
	backups  BackupRunner
	sessions session.Store
	sender   Sender
	titles   TitleFetcher

	// backupTimeout bounds the detached background backup/restore runs.
	backupTimeout time.Duration
}

func NewMachine(gate *Gate, records Records, backups BackupRunner, sessions session.Store, sender Sender, titles TitleFetcher) *Machine {
	return &Machine{
		gate:          gate,
		records:       records,
		backups:       backups,
		sessions:      sessions,
		sender:        sender,
		titles:        titles,
		backupTimeout: 15 * time.Minute,
	}
}

// HandleUpdate decodes, gates and dispatches one inbound update.
func (m *Machine) HandleUpdate(ctx context.Context, update *telegram.Update) {
	ev, ok := DecodeUpdate(update)
	if !ok {
		return
	}

	if !m.gate.Allow(ev.ActorID) {
		if ev.Kind == KindCallback && ev.Callback != nil {
			m.answerCallback(ctx, ev.Callback.QueryID, msgDenied)
			return
		}
		m.reply(ctx, ev.ChatID, msgDenied, nil)
		return
	}

	if err := m.handleEvent(ctx, ev); err != nil {
		log.Printf("handle event failed (owner=%d kind=%d): %v", ev.ActorID, ev.Kind, err)
		m.reply(ctx, ev.ChatID, msgTryLater, mainKeyboard())
	}
}

func (m *Machine) handleEvent(ctx context.Context, ev Event) error {
	// Inline callbacks act on a specific old message and are valid from
	// any conversation state.
	if ev.Kind == KindCallback {
		return m.handleCallback(ctx, ev)
	}

	if ev.Kind == KindCommandStart {
		if err := m.sessions.Clear(ctx, ev.ActorID); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgWelcome, mainKeyboard())
		return nil
	}

	// Cancel is honored from every state and discards scratch data.
	if ev.Kind == KindMenu && ev.Menu == MenuCancel {
		if err := m.sessions.Clear(ctx, ev.ActorID); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgCancelled, mainKeyboard())
		return nil
	}

	sess, err := m.sessions.Get(ctx, ev.ActorID)
	if err != nil {
		return err
	}

	switch sess.State {
	case session.Idle, "":
		return m.handleIdle(ctx, ev)
	case session.AwaitingBody:
		return m.handleAwaitingBody(ctx, ev, sess)
	case session.AwaitingName:
		return m.handleAwaitingName(ctx, ev, sess)
	case session.AwaitingTagChoice:
		return m.handleAwaitingTagChoice(ctx, ev, sess)
	case session.AwaitingTagSelection:
		return m.handleAwaitingTagSelection(ctx, ev, sess)
	case session.AwaitingNewTagText:
		return m.handleAwaitingNewTagText(ctx, ev, sess)
	case session.AwaitingDeleteAllConfirm1:
		return m.handleDeleteAllConfirm1(ctx, ev)
	case session.AwaitingDeleteAllConfirm2:
		return m.handleDeleteAllConfirm2(ctx, ev)
	case session.AwaitingTagSearchSelection:
		return m.handleTagSearchSelection(ctx, ev)
	case session.AwaitingRestoreConfirm:
		return m.handleRestoreConfirm(ctx, ev)
	case session.EditingName:
		return m.handleEditField(ctx, ev, sess, repository.FieldName)
	case session.EditingBody:
		return m.handleEditField(ctx, ev, sess, repository.FieldBody)
	case session.EditingTag:
		return m.handleEditField(ctx, ev, sess, repository.FieldTag)
	default:
		// Unknown state in the store; recover by resetting.
		if err := m.sessions.Clear(ctx, ev.ActorID); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgUseButtons, mainKeyboard())
		return nil
	}
}

func (m *Machine) handleIdle(ctx context.Context, ev Event) error {
	if ev.Kind == KindMenu {
		switch ev.Menu {
		case MenuViewRecords:
			return m.showRecords(ctx, ev)
		case MenuSearchByTag:
			return m.startTagSearch(ctx, ev)
		case MenuExtra:
			m.reply(ctx, ev.ChatID, msgPickNext, extraKeyboard())
			return nil
		case MenuBack:
			m.reply(ctx, ev.ChatID, msgPickNext, mainKeyboard())
			return nil
		case MenuCreateBackup:
			m.runBackup(model.BackupManual)
			m.reply(ctx, ev.ChatID, msgBackupRun, mainKeyboard())
			return nil
		case MenuRestoreBackup:
			if err := m.setState(ctx, ev.ActorID, session.Session{State: session.AwaitingRestoreConfirm}); err != nil {
				return err
			}
			m.reply(ctx, ev.ChatID, msgRestoreWarn, cancelKeyboard())
			return nil
		case MenuStatistics:
			return m.showStats(ctx, ev)
		case MenuExport:
			return m.sendExport(ctx, ev)
		case MenuDeleteAll:
			if err := m.setState(ctx, ev.ActorID, session.Session{State: session.AwaitingDeleteAllConfirm1}); err != nil {
				return err
			}
			m.reply(ctx, ev.ChatID, msgDeleteAllWarn1, deleteAllConfirm1Keyboard())
			return nil
		default:
			m.reply(ctx, ev.ChatID, msgUseButtons, mainKeyboard())
			return nil
		}
	}

	// Free text while idle starts the add flow with the text as the body.
	return m.acceptBody(ctx, ev, session.Session{})
}

func (m *Machine) handleAwaitingBody(ctx context.Context, ev Event, sess session.Session) error {
	return m.acceptBody(ctx, ev, sess)
}

// acceptBody validates free text as a record body and advances to the
// name step. Invalid input re-prompts without losing the flow.
func (m *Machine) acceptBody(ctx context.Context, ev Event, sess session.Session) error {
	body, err := app.ValidateBody(ev.Text)
	var vErr *app.ValidationError
	if errors.As(err, &vErr) {
		if setErr := m.setState(ctx, ev.ActorID, session.Session{State: session.AwaitingBody}); setErr != nil {
			return setErr
		}
		m.reply(ctx, ev.ChatID, "❌ "+vErr.Reason, cancelKeyboard())
		return nil
	}
	if err != nil {
		return err
	}

	sess.State = session.AwaitingName
	sess.Scratch = session.Scratch{Body: body}

	var suggested string
	if isHTTPURL(body) {
		sess.Scratch.PendingURL = body
		suggested = m.suggestName(ctx, body)
	}

	if err := m.setState(ctx, ev.ActorID, sess); err != nil {
		return err
	}
	m.reply(ctx, ev.ChatID, msgAskName, nameKeyboard(suggested))
	return nil
}

func (m *Machine) handleAwaitingName(ctx context.Context, ev Event, sess session.Session) error {
	if ev.Kind == KindMenu && ev.Menu == MenuSkip {
		sess.Scratch.Name = ""
	} else {
		name, err := app.ValidateName(ev.Text)
		var vErr *app.ValidationError
		if errors.As(err, &vErr) {
			m.reply(ctx, ev.ChatID, "❌ "+vErr.Reason, nameKeyboard(""))
			return nil
		}
		if err != nil {
			return err
		}
		sess.Scratch.Name = name
	}

	sess.State = session.AwaitingTagChoice
	if err := m.setState(ctx, ev.ActorID, sess); err != nil {
		return err
	}
	m.reply(ctx, ev.ChatID, msgAskTagChoice, tagChoiceKeyboard())
	return nil
}

func (m *Machine) handleAwaitingTagChoice(ctx context.Context, ev Event, sess session.Session) error {
	if ev.Kind == KindMenu && ev.Menu == MenuYes {
		counts, err := m.records.TagCounts(ctx, ev.ActorID)
		if err != nil {
			return err
		}
		sess.State = session.AwaitingTagSelection
		if err := m.setState(ctx, ev.ActorID, sess); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgAskTagPick, tagsKeyboard(counts, true))
		return nil
	}

	if ev.Kind == KindMenu && ev.Menu == MenuNo {
		return m.saveAndFinish(ctx, ev, sess, model.NoTag)
	}

	m.reply(ctx, ev.ChatID, msgAskTagChoice, tagChoiceKeyboard())
	return nil
}

func (m *Machine) handleAwaitingTagSelection(ctx context.Context, ev Event, sess session.Session) error {
	if ev.Kind == KindMenu && ev.Menu == MenuNewTag {
		sess.State = session.AwaitingNewTagText
		sess.Scratch.CreatingNewTag = true
		if err := m.setState(ctx, ev.ActorID, sess); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgAskNewTag, cancelKeyboard())
		return nil
	}

	return m.saveWithTag(ctx, ev, sess, stripTagCount(ev.Text))
}

func (m *Machine) handleAwaitingNewTagText(ctx context.Context, ev Event, sess session.Session) error {
	return m.saveWithTag(ctx, ev, sess, ev.Text)
}

func (m *Machine) saveWithTag(ctx context.Context, ev Event, sess session.Session, tag string) error {
	tag, err := app.ValidateTag(tag)
	var vErr *app.ValidationError
	if errors.As(err, &vErr) {
		m.reply(ctx, ev.ChatID, "❌ "+vErr.Reason, cancelKeyboard())
		return nil
	}
	if err != nil {
		return err
	}
	return m.saveAndFinish(ctx, ev, sess, tag)
}

// saveAndFinish commits the collected record and returns the flow to Idle
// whatever the outcome. A duplicate is a normal result, not an error.
func (m *Machine) saveAndFinish(ctx context.Context, ev Event, sess session.Session, tag string) error {
	_, err := m.records.Save(ctx, ev.ActorID, sess.Scratch.Body, tag, sess.Scratch.Name)

	if clearErr := m.sessions.Clear(ctx, ev.ActorID); clearErr != nil {
		return clearErr
	}

	switch {
	case errors.Is(err, app.ErrAlreadyExists):
		m.reply(ctx, ev.ChatID, msgDuplicate, mainKeyboard())
		return nil
	case err != nil:
		return err
	}

	switch {
	case tag == model.NoTag:
		m.reply(ctx, ev.ChatID, msgSavedNoTag, mainKeyboard())
	case sess.Scratch.CreatingNewTag:
		m.reply(ctx, ev.ChatID, msgSavedNewTag, mainKeyboard())
	default:
		m.reply(ctx, ev.ChatID, msgSavedOldTag, mainKeyboard())
	}
	return nil
}

func (m *Machine) handleDeleteAllConfirm1(ctx context.Context, ev Event) error {
	if ev.Kind == KindMenu && ev.Menu == MenuDeleteAllConfirm1 {
		if err := m.setState(ctx, ev.ActorID, session.Session{State: session.AwaitingDeleteAllConfirm2}); err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgDeleteAllWarn2, deleteAllConfirm2Keyboard())
		return nil
	}
	return m.abortDeleteAll(ctx, ev)
}

func (m *Machine) handleDeleteAllConfirm2(ctx context.Context, ev Event) error {
	if ev.Kind == KindMenu && ev.Menu == MenuDeleteAllConfirm2 {
		err := m.records.DeleteAll(ctx, ev.ActorID)
		if clearErr := m.sessions.Clear(ctx, ev.ActorID); clearErr != nil {
			return clearErr
		}
		if err != nil {
			return err
		}
		m.reply(ctx, ev.ChatID, msgDeleteAllDone, mainKeyboard())
		return nil
	}
	return m.abortDeleteAll(ctx, ev)
}

// abortDeleteAll: anything but the exact affirmative label aborts with no
// deletion.
func (m *Machine) abortDeleteAll(ctx context.Context, ev Event) error {
	if err := m.sessions.Clear(ctx, ev.ActorID); err != nil {
		return err
	}
	m.reply(ctx, ev.ChatID, msgDeleteAborted, mainKeyboard())
	return nil
}

func (m *Machine) handleTagSearchSelection(ctx context.Context, ev Event) error {
	tag := stripTagCount(ev.Text)

	records, err := m.records.ListByTag(ctx, ev.ActorID, tag)
	if err != nil {
		return err
	}
	if clearErr := m.sessions.Clear(ctx, ev.ActorID); clearErr != nil {
		return clearErr
	}

	if len(records) == 0 {
		m.reply(ctx, ev.ChatID, fmt.Sprintf("📭 No records with tag '%s'.", tag), mainKeyboard())
		return nil
	}

	header := fmt.Sprintf("🔍 Records with tag '%s':\n", tag)
	for _, chunk := range chunkRecords(header, records) {
		m.reply(ctx, ev.ChatID, chunk, nil)
	}
	m.reply(ctx, ev.ChatID, msgPickNext, mainKeyboard())
	return nil
}

func (m *Machine) handleRestoreConfirm(ctx context.Context, ev Event) error {
	if err := m.sessions.Clear(ctx, ev.ActorID); err != nil {
		return err
	}

	if ev.Kind != KindText || ev.Text != restoreConfirmPhrase {
		m.reply(ctx, ev.ChatID, msgRestoreAbort, mainKeyboard())
		return nil
	}

	m.runRestore()
	m.reply(ctx, ev.ChatID, msgRestoreRun, mainKeyboard())
	return nil
}

func (m *Machine) handleEditField(ctx context.Context, ev Event, sess session.Session, field repository.Field) error {
	err := m.records.UpdateField(ctx, ev.ActorID, sess.Scratch.EditingRecordID, field, ev.Text)

	var vErr *app.ValidationError
	if errors.As(err, &vErr) {
		m.reply(ctx, ev.ChatID, "❌ "+vErr.Reason, cancelKeyboard())
		return nil
	}

	if clearErr := m.sessions.Clear(ctx, ev.ActorID); clearErr != nil {
		return clearErr
	}

	switch {
	case errors.Is(err, app.ErrNotFound):
		m.reply(ctx, ev.ChatID, msgNoRecords, mainKeyboard())
		return nil
	case errors.Is(err, app.ErrAlreadyExists):
		m.reply(ctx, ev.ChatID, msgDuplicate, mainKeyboard())
		return nil
	case err != nil:
		return err
	}

	m.reply(ctx, ev.ChatID, msgEdited, mainKeyboard())
	return nil
}

func (m *Machine) handleCallback(ctx context.Context, ev Event) error {
	cb := ev.Callback

	switch cb.Kind {
	case CallbackDelete:
		if err := m.sender.EditMessageText(ctx, ev.ChatID, cb.MessageID,
			cb.MessageText+"\n\n❓ Delete this record?", deleteConfirmInlineKeyboard(cb.RecordID)); err != nil {
			log.Printf("edit message failed: %v", err)
		}
		m.answerCallback(ctx, cb.QueryID, "")
		return nil

	case CallbackConfirmDelete:
		err := m.records.Delete(ctx, ev.ActorID, cb.RecordID)
		switch {
		case errors.Is(err, app.ErrNotFound):
			m.answerCallback(ctx, cb.QueryID, "❌ Record not found")
			return nil
		case err != nil:
			m.answerCallback(ctx, cb.QueryID, msgTryLater)
			return nil
		}
		if err := m.sender.DeleteMessage(ctx, ev.ChatID, cb.MessageID); err != nil {
			log.Printf("delete message failed: %v", err)
		}
		m.answerCallback(ctx, cb.QueryID, "✅ Record deleted!")
		return nil

	case CallbackCancelDelete:
		original := cb.MessageText
		if idx := indexConfirmSuffix(original); idx >= 0 {
			original = original[:idx]
		}
		if err := m.sender.EditMessageText(ctx, ev.ChatID, cb.MessageID, original, recordKeyboard(cb.RecordID)); err != nil {
			log.Printf("edit message failed: %v", err)
		}
		m.answerCallback(ctx, cb.QueryID, "Deletion cancelled")
		return nil

	case CallbackEdit:
		if err := m.sender.EditMessageText(ctx, ev.ChatID, cb.MessageID,
			cb.MessageText+"\n\n✏️ What do you want to change?", editFieldInlineKeyboard(cb.RecordID)); err != nil {
			log.Printf("edit message failed: %v", err)
		}
		m.answerCallback(ctx, cb.QueryID, "")
		return nil

	case CallbackEditName, CallbackEditBody, CallbackEditTag:
		var state session.State
		var prompt string
		switch cb.Kind {
		case CallbackEditName:
			state, prompt = session.EditingName, msgAskEditName
		case CallbackEditBody:
			state, prompt = session.EditingBody, msgAskEditBody
		default:
			state, prompt = session.EditingTag, msgAskEditTag
		}
		sess := session.Session{
			State:   state,
			Scratch: session.Scratch{EditingRecordID: cb.RecordID},
		}
		if err := m.setState(ctx, ev.ActorID, sess); err != nil {
			return err
		}
		m.answerCallback(ctx, cb.QueryID, "")
		m.reply(ctx, ev.ChatID, prompt, cancelKeyboard())
		return nil
	}
	return nil
}

func (m *Machine) showRecords(ctx context.Context, ev Event) error {
	records, err := m.records.List(ctx, ev.ActorID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		m.reply(ctx, ev.ChatID, msgNoRecords, mainKeyboard())
		return nil
	}

	for _, r := range records {
		m.reply(ctx, ev.ChatID, clampMessage(recordText(r)), recordKeyboard(r.ID))
	}
	m.reply(ctx, ev.ChatID, msgPickNext, mainKeyboard())
	return nil
}

func (m *Machine) startTagSearch(ctx context.Context, ev Event) error {
	counts, err := m.records.TagCounts(ctx, ev.ActorID)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		m.reply(ctx, ev.ChatID, msgNoTags, mainKeyboard())
		return nil
	}

	if err := m.setState(ctx, ev.ActorID, session.Session{State: session.AwaitingTagSearchSelection}); err != nil {
		return err
	}
	m.reply(ctx, ev.ChatID, msgPickTag, tagsKeyboard(counts, false))
	return nil
}

func (m *Machine) showStats(ctx context.Context, ev Event) error {
	stats, err := m.records.Stats(ctx, ev.ActorID)
	if err != nil {
		return err
	}
	m.reply(ctx, ev.ChatID, statsText(stats), mainKeyboard())
	return nil
}

func (m *Machine) sendExport(ctx context.Context, ev Event) error {
	exported, err := m.records.Export(ctx, ev.ActorID)
	if err != nil {
		return err
	}
	if len(exported) == 0 {
		m.reply(ctx, ev.ChatID, msgNoRecords, mainKeyboard())
		return nil
	}

	payload, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export failed: %w", err)
	}

	filename := fmt.Sprintf("notekeeper_export_%s.json", time.Now().Format("2006-01-02"))
	if err := m.sender.SendDocument(ctx, ev.ChatID, filename, payload, fmt.Sprintf("📦 %d records", len(exported))); err != nil {
		return fmt.Errorf("send export failed: %w", err)
	}
	m.reply(ctx, ev.ChatID, msgPickNext, mainKeyboard())
	return nil
}

// runBackup launches a detached backup; the request context would die with
// the webhook response.
func (m *Machine) runBackup(kind model.BackupKind) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.backupTimeout)
		defer cancel()
		if _, err := m.backups.BackupNow(ctx, kind); err != nil {
			log.Printf("manual backup failed: %v", err)
		}
	}()
}

func (m *Machine) runRestore() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.backupTimeout)
		defer cancel()
		if err := m.backups.RestoreLatest(ctx); err != nil {
			log.Printf("restore failed: %v", err)
		}
	}()
}

func (m *Machine) suggestName(ctx context.Context, pageURL string) string {
	if m.titles == nil {
		return ""
	}
	fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	title, err := m.titles.Fetch(fetchCtx, pageURL)
	if err != nil {
		log.Printf("fetch page title failed (%s): %v", pageURL, err)
		return ""
	}
	if len(title) > app.MaxNameLength {
		return ""
	}
	return title
}

func (m *Machine) setState(ctx context.Context, ownerID int64, sess session.Session) error {
	return m.sessions.Set(ctx, ownerID, sess)
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string, markup interface{}) {
	if err := m.sender.SendMessage(ctx, chatID, text, markup); err != nil {
		log.Printf("send message failed (chat=%d): %v", chatID, err)
	}
}

func (m *Machine) answerCallback(ctx context.Context, queryID, text string) {
	if queryID == "" {
		return
	}
	if err := m.sender.AnswerCallbackQuery(ctx, queryID, text); err != nil {
		log.Printf("answer callback failed: %v", err)
	}
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// indexConfirmSuffix finds the confirmation block appended by the delete
// callback so cancel can restore the original record text.
func indexConfirmSuffix(text string) int {
	return strings.Index(text, "\n\n❓")
}
