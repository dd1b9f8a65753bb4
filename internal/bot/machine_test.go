package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notekeeper/internal/app"
	"notekeeper/internal/model"
	"notekeeper/internal/platform/telegram"
	"notekeeper/internal/repository"
	"notekeeper/internal/session"
)

const testOwner = int64(42)

type sentMessage struct {
	chatID int64
	text   string
	markup interface{}
}

type fakeSender struct {
	mu        sync.Mutex
	messages  []sentMessage
	edits     []string
	deleted   []int64
	answers   []string
	documents []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string, replyMarkup interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{chatID: chatID, text: text, markup: replyMarkup})
	return nil
}

func (f *fakeSender) EditMessageText(ctx context.Context, chatID, messageID int64, text string, replyMarkup *telegram.InlineKeyboardMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeSender) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSender) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeSender) SendDocument(ctx context.Context, chatID int64, filename string, content []byte, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, filename)
	return nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.messages)
	return f.messages[len(f.messages)-1].text
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.messages))
	for _, m := range f.messages {
		out = append(out, m.text)
	}
	return out
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[uint64]*model.Record
	nextID  uint64
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{records: make(map[uint64]*model.Record), nextID: 1}
}

func (f *fakeRecords) Save(ctx context.Context, ownerID int64, body, tag, name string) (uint64, error) {
	body, err := app.ValidateBody(body)
	if err != nil {
		return 0, err
	}
	if tag == "" {
		tag = model.NoTag
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.Body == body && r.Tag == tag {
			return 0, app.ErrAlreadyExists
		}
	}
	id := f.nextID
	f.nextID++
	f.records[id] = &model.Record{
		ID: id, OwnerID: ownerID, Body: body, BodySHA: model.HashBody(body),
		Name: name, Tag: tag, CreatedAt: time.Now(),
	}
	return id, nil
}

func (f *fakeRecords) List(ctx context.Context, ownerID int64) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecords) Get(ctx context.Context, ownerID int64, id uint64) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.OwnerID != ownerID {
		return nil, app.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRecords) ListByTag(ctx context.Context, ownerID int64, tag string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.Tag == tag {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecords) TagCounts(ctx context.Context, ownerID int64) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, r := range f.records {
		if r.OwnerID == ownerID {
			counts[r.Tag]++
		}
	}
	return counts, nil
}

func (f *fakeRecords) UpdateField(ctx context.Context, ownerID int64, id uint64, field repository.Field, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.OwnerID != ownerID {
		return app.ErrNotFound
	}
	switch field {
	case repository.FieldName:
		r.Name = value
	case repository.FieldBody:
		r.Body = value
	case repository.FieldTag:
		r.Tag = value
	}
	return nil
}

func (f *fakeRecords) Delete(ctx context.Context, ownerID int64, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.OwnerID != ownerID {
		return app.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRecords) DeleteAll(ctx context.Context, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if r.OwnerID == ownerID {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeRecords) Export(ctx context.Context, ownerID int64) ([]repository.ExportedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.ExportedRecord
	for _, r := range f.records {
		if r.OwnerID == ownerID {
			out = append(out, repository.ExportedRecord{Body: r.Body, Tag: r.Tag, Name: r.Name, CreatedAt: r.CreatedAt})
		}
	}
	return out, nil
}

func (f *fakeRecords) Stats(ctx context.Context, ownerID int64) (app.Stats, error) {
	counts, _ := f.TagCounts(ctx, ownerID)
	var stats app.Stats
	for tag, count := range counts {
		stats.Total += count
		if tag != model.NoTag {
			stats.DistinctTags++
		}
	}
	return stats, nil
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeBackups struct {
	mu       sync.Mutex
	backups  []model.BackupKind
	restores int
}

func (f *fakeBackups) BackupNow(ctx context.Context, kind model.BackupKind) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups = append(f.backups, kind)
	return "https://drive.example/backup", nil
}

func (f *fakeBackups) RestoreLatest(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restores++
	return nil
}

func (f *fakeBackups) backupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backups)
}

func (f *fakeBackups) restoreCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restores
}

type machineFixture struct {
	machine  *Machine
	sender   *fakeSender
	records  *fakeRecords
	backups  *fakeBackups
	sessions *session.MemoryStore
}

func newMachineFixture() *machineFixture {
	sender := &fakeSender{}
	records := newFakeRecords()
	backups := &fakeBackups{}
	sessions := session.NewMemoryStore(time.Hour)
	machine := NewMachine(NewGate(testOwner), records, backups, sessions, sender, nil)
	return &machineFixture{
		machine:  machine,
		sender:   sender,
		records:  records,
		backups:  backups,
		sessions: sessions,
	}
}

func (fx *machineFixture) send(text string) {
	fx.machine.HandleUpdate(context.Background(), messageUpdate(text))
}

func (fx *machineFixture) sendCallback(data string, messageText string) {
	fx.machine.HandleUpdate(context.Background(), &telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb",
			From: telegram.User{ID: testOwner},
			Data: data,
			Message: &telegram.Message{
				MessageID: 77,
				Chat:      telegram.Chat{ID: testOwner},
				Text:      messageText,
			},
		},
	})
}

func (fx *machineFixture) state(t *testing.T) session.State {
	t.Helper()
	sess, err := fx.sessions.Get(context.Background(), testOwner)
	require.NoError(t, err)
	return sess.State
}

func TestGateDeniesStranger(t *testing.T) {
	fx := newMachineFixture()

	update := messageUpdate("buy milk")
	update.Message.From.ID = 99
	update.Message.Chat.ID = 99
	fx.machine.HandleUpdate(context.Background(), update)

	assert.Equal(t, msgDenied, fx.sender.lastText(t))
	assert.Zero(t, fx.records.count())
}

func TestStartResetsConversation(t *testing.T) {
	fx := newMachineFixture()
	require.NoError(t, fx.sessions.Set(context.Background(), testOwner, session.Session{State: session.AwaitingName}))

	fx.send("/start")

	assert.Equal(t, msgWelcome, fx.sender.lastText(t))
	assert.Equal(t, session.Idle, fx.state(t))
}

func TestImplicitAddFlow(t *testing.T) {
	fx := newMachineFixture()

	fx.send("buy milk")
	assert.Equal(t, msgAskName, fx.sender.lastText(t))
	assert.Equal(t, session.AwaitingName, fx.state(t))

	fx.send("groceries list")
	assert.Equal(t, msgAskTagChoice, fx.sender.lastText(t))

	fx.send(labelNo)
	assert.Equal(t, msgSavedNoTag, fx.sender.lastText(t))
	assert.Equal(t, session.Idle, fx.state(t))

	records, err := fx.records.List(context.Background(), testOwner)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "buy milk", records[0].Body)
	assert.Equal(t, "groceries list", records[0].Name)
	assert.Equal(t, model.NoTag, records[0].Tag)
}

func TestAddFlowWithNewTag(t *testing.T) {
	fx := newMachineFixture()

	fx.send("meeting notes")
	fx.send(labelSkip)
	fx.send(labelYes)
	assert.Equal(t, msgAskTagPick, fx.sender.lastText(t))

	fx.send(labelNewTag)
	assert.Equal(t, msgAskNewTag, fx.sender.lastText(t))

	fx.send("work")
	assert.Equal(t, msgSavedNewTag, fx.sender.lastText(t))

	records, err := fx.records.ListByTag(context.Background(), testOwner, "work")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Name)
}

func TestAddFlowWithExistingTag(t *testing.T) {
	fx := newMachineFixture()
	_, err := fx.records.Save(context.Background(), testOwner, "older note", "work", "")
	require.NoError(t, err)

	fx.send("newer note")
	fx.send(labelSkip)
	fx.send(labelYes)
	fx.send("work (1)")

	assert.Equal(t, msgSavedOldTag, fx.sender.lastText(t))
	records, err := fx.records.ListByTag(context.Background(), testOwner, "work")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestDuplicateSaveReported(t *testing.T) {
	fx := newMachineFixture()
	_, err := fx.records.Save(context.Background(), testOwner, "buy milk", "", "")
	require.NoError(t, err)

	fx.send("buy milk")
	fx.send(labelSkip)
	fx.send(labelNo)

	assert.Equal(t, msgDuplicate, fx.sender.lastText(t))
	assert.Equal(t, 1, fx.records.count())
	assert.Equal(t, session.Idle, fx.state(t))
}

func TestBodyValidationRePrompts(t *testing.T) {
	fx := newMachineFixture()

	fx.send("   ")
	// Whitespace-only text never reaches the machine; the decoder drops it.
	assert.Empty(t, fx.sender.texts())

	longBody := make([]byte, 0, app.MaxBodyLength+1)
	for i := 0; i <= app.MaxBodyLength; i++ {
		longBody = append(longBody, 'a')
	}
	fx.send(string(longBody))
	assert.Contains(t, fx.sender.lastText(t), "too long")
	assert.Equal(t, session.AwaitingBody, fx.state(t))

	// A valid body afterwards continues the flow.
	fx.send("short enough")
	assert.Equal(t, msgAskName, fx.sender.lastText(t))
}

func TestCancelFromEveryState(t *testing.T) {
	states := []session.State{
		session.AwaitingBody,
		session.AwaitingName,
		session.AwaitingTagChoice,
		session.AwaitingTagSelection,
		session.AwaitingNewTagText,
		session.AwaitingDeleteAllConfirm1,
		session.AwaitingDeleteAllConfirm2,
		session.AwaitingTagSearchSelection,
		session.AwaitingRestoreConfirm,
		session.EditingName,
		session.EditingBody,
		session.EditingTag,
	}

	for _, state := range states {
		t.Run(string(state), func(t *testing.T) {
			fx := newMachineFixture()
			require.NoError(t, fx.sessions.Set(context.Background(), testOwner, session.Session{
				State:   state,
				Scratch: session.Scratch{Body: "half-done"},
			}))

			fx.send(labelCancel)

			assert.Equal(t, msgCancelled, fx.sender.lastText(t))
			assert.Equal(t, session.Idle, fx.state(t))

			sess, err := fx.sessions.Get(context.Background(), testOwner)
			require.NoError(t, err)
			assert.Empty(t, sess.Scratch.Body)
		})
	}
}

func TestDeleteAllTwoStepConfirm(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	for _, body := range []string{"one", "two", "three"} {
		_, err := fx.records.Save(ctx, testOwner, body, "", "")
		require.NoError(t, err)
	}

	fx.send(labelDeleteAll)
	assert.Equal(t, msgDeleteAllWarn1, fx.sender.lastText(t))
	assert.Equal(t, 3, fx.records.count())

	fx.send(labelDeleteAllYes1)
	assert.Equal(t, msgDeleteAllWarn2, fx.sender.lastText(t))
	assert.Equal(t, 3, fx.records.count())

	fx.send(labelDeleteAllYes2)
	assert.Equal(t, msgDeleteAllDone, fx.sender.lastText(t))
	assert.Zero(t, fx.records.count())
}

func TestDeleteAllAbortsOnAnyOtherInput(t *testing.T) {
	inputs := []string{labelDeleteAllNo1, labelDeleteAllNo2, "random text", labelViewRecords, labelDeleteAllYes1}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			fx := newMachineFixture()
			_, err := fx.records.Save(context.Background(), testOwner, "precious", "", "")
			require.NoError(t, err)

			// At the second step even the first-step affirmative aborts.
			require.NoError(t, fx.sessions.Set(context.Background(), testOwner, session.Session{
				State: session.AwaitingDeleteAllConfirm2,
			}))

			fx.send(input)
			assert.Equal(t, msgDeleteAborted, fx.sender.lastText(t))
			assert.Equal(t, 1, fx.records.count())
			assert.Equal(t, session.Idle, fx.state(t))
		})
	}
}

func TestRestoreRequiresExactPhrase(t *testing.T) {
	for _, wrong := range []string{"restore", "Restore", "RESTOR", "yes"} {
		t.Run(wrong, func(t *testing.T) {
			fx := newMachineFixture()
			fx.send(labelExtra)
			fx.send(labelRestoreBackup)
			assert.Equal(t, msgRestoreWarn, fx.sender.lastText(t))

			fx.send(wrong)
			assert.Equal(t, msgRestoreAbort, fx.sender.lastText(t))
			assert.Zero(t, fx.backups.restoreCount())
			assert.Equal(t, session.Idle, fx.state(t))
		})
	}
}

func TestRestoreRunsOnExactPhrase(t *testing.T) {
	fx := newMachineFixture()
	fx.send(labelExtra)
	fx.send(labelRestoreBackup)

	fx.send(restoreConfirmPhrase)
	assert.Equal(t, msgRestoreRun, fx.sender.lastText(t))

	assert.Eventually(t, func() bool {
		return fx.backups.restoreCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestManualBackupRuns(t *testing.T) {
	fx := newMachineFixture()
	fx.send(labelExtra)
	fx.send(labelCreateBackup)

	assert.Equal(t, msgBackupRun, fx.sender.lastText(t))
	assert.Eventually(t, func() bool {
		return fx.backups.backupCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestViewRecordsEmpty(t *testing.T) {
	fx := newMachineFixture()

	fx.send(labelViewRecords)
	assert.Equal(t, msgNoRecords, fx.sender.lastText(t))
}

func TestViewRecordsSendsOnePerRecord(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	_, err := fx.records.Save(ctx, testOwner, "first", "", "")
	require.NoError(t, err)
	_, err = fx.records.Save(ctx, testOwner, "second", "work", "named")
	require.NoError(t, err)

	fx.send(labelViewRecords)

	texts := fx.sender.texts()
	// Two record cards plus the trailing menu prompt.
	require.Len(t, texts, 3)
	assert.Equal(t, msgPickNext, texts[2])
}

func TestViewRecordsClampsLongBodies(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	_, err := fx.records.Save(ctx, testOwner, strings.Repeat("x", 4096), "work", "long one")
	require.NoError(t, err)

	fx.send(labelViewRecords)

	for _, text := range fx.sender.texts() {
		assert.LessOrEqual(t, len(text), maxChunk)
	}
}

func TestTagSearchBoundsLongBodies(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	body := strings.Repeat("x", 4096)
	_, err := fx.records.Save(ctx, testOwner, body, "work", "")
	require.NoError(t, err)

	fx.send(labelSearchByTag)
	fx.send("work (1)")

	var joined string
	for _, text := range fx.sender.texts() {
		assert.LessOrEqual(t, len(text), maxChunk)
		joined += text
	}
	assert.Contains(t, joined, body)
}

func TestTagSearchFlow(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	_, err := fx.records.Save(ctx, testOwner, "note a", "work", "")
	require.NoError(t, err)
	_, err = fx.records.Save(ctx, testOwner, "note b", "work", "")
	require.NoError(t, err)
	_, err = fx.records.Save(ctx, testOwner, "note c", "home", "")
	require.NoError(t, err)

	fx.send(labelSearchByTag)
	assert.Equal(t, msgPickTag, fx.sender.lastText(t))
	assert.Equal(t, session.AwaitingTagSearchSelection, fx.state(t))

	fx.send("work (2)")
	texts := fx.sender.texts()
	assert.Contains(t, texts[len(texts)-2], "note a")
	assert.Contains(t, texts[len(texts)-2], "note b")
	assert.NotContains(t, texts[len(texts)-2], "note c")
	assert.Equal(t, session.Idle, fx.state(t))
}

func TestTagSearchNoTags(t *testing.T) {
	fx := newMachineFixture()

	fx.send(labelSearchByTag)
	assert.Equal(t, msgNoTags, fx.sender.lastText(t))
	assert.Equal(t, session.Idle, fx.state(t))
}

func TestCallbackDeleteFlow(t *testing.T) {
	fx := newMachineFixture()
	id, err := fx.records.Save(context.Background(), testOwner, "doomed", "", "")
	require.NoError(t, err)

	fx.sendCallback(deleteCallbackData(id), "doomed")
	require.NotEmpty(t, fx.sender.edits)
	assert.Contains(t, fx.sender.edits[0], "Delete this record?")
	assert.Equal(t, 1, fx.records.count())

	fx.sendCallback(confirmDeleteCallbackData(id), "doomed\n\n❓ Delete this record?")
	assert.Zero(t, fx.records.count())
	assert.Contains(t, fx.sender.deleted, int64(77))
}

func TestCallbackCancelDeleteRestoresText(t *testing.T) {
	fx := newMachineFixture()
	id, err := fx.records.Save(context.Background(), testOwner, "kept", "", "")
	require.NoError(t, err)

	fx.sendCallback(cancelDeleteCallbackData(id), "kept\n\n❓ Delete this record?")

	require.NotEmpty(t, fx.sender.edits)
	assert.Equal(t, "kept", fx.sender.edits[0])
	assert.Equal(t, 1, fx.records.count())
}

func TestCallbackDeleteMissingRecord(t *testing.T) {
	fx := newMachineFixture()

	fx.sendCallback(confirmDeleteCallbackData(999), "gone")
	require.NotEmpty(t, fx.sender.answers)
	assert.Contains(t, fx.sender.answers[0], "not found")
}

func TestEditFieldFlow(t *testing.T) {
	fx := newMachineFixture()
	id, err := fx.records.Save(context.Background(), testOwner, "original body", "work", "old name")
	require.NoError(t, err)

	fx.sendCallback(editCallbackData(id), "original body")
	require.NotEmpty(t, fx.sender.edits)
	assert.Contains(t, fx.sender.edits[0], "What do you want to change?")

	fx.sendCallback(editFieldCallbackData("name", id), "original body")
	assert.Equal(t, msgAskEditName, fx.sender.lastText(t))
	assert.Equal(t, session.EditingName, fx.state(t))

	fx.send("new name")
	assert.Equal(t, msgEdited, fx.sender.lastText(t))
	assert.Equal(t, session.Idle, fx.state(t))

	got, err := fx.records.Get(context.Background(), testOwner, id)
	require.NoError(t, err)
	assert.Equal(t, "new name", got.Name)
	assert.Equal(t, "original body", got.Body)
}

func TestExportSendsDocument(t *testing.T) {
	fx := newMachineFixture()
	_, err := fx.records.Save(context.Background(), testOwner, "keep this", "", "")
	require.NoError(t, err)

	fx.send(labelExtra)
	fx.send(labelExport)

	require.Len(t, fx.sender.documents, 1)
	assert.Contains(t, fx.sender.documents[0], "notekeeper_export_")
}

func TestExportEmptyStore(t *testing.T) {
	fx := newMachineFixture()

	fx.send(labelExtra)
	fx.send(labelExport)

	assert.Empty(t, fx.sender.documents)
	assert.Equal(t, msgNoRecords, fx.sender.lastText(t))
}

func TestStatisticsReply(t *testing.T) {
	fx := newMachineFixture()
	ctx := context.Background()
	_, err := fx.records.Save(ctx, testOwner, "a", "work", "")
	require.NoError(t, err)
	_, err = fx.records.Save(ctx, testOwner, "b", "", "")
	require.NoError(t, err)

	fx.send(labelExtra)
	fx.send(labelStatistics)

	got := fx.sender.lastText(t)
	assert.Contains(t, got, "Records: 2")
	assert.Contains(t, got, "Tags: 1")
}

func TestUnknownButtonWhileIdle(t *testing.T) {
	fx := newMachineFixture()

	// Skip has no meaning outside the naming step.
	fx.send(labelSkip)
	assert.Equal(t, msgUseButtons, fx.sender.lastText(t))
	assert.Equal(t, session.Idle, fx.state(t))
}
