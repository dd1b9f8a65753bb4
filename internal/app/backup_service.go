package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"notekeeper/internal/model"
)

const dumpExtension = ".sql"

// Dumper produces and applies logical dumps of the record database.
type Dumper interface {
	Dump(ctx context.Context, dest string) error
	Restore(ctx context.Context, src string) error
}

// BlobStore is the external backup destination contract.
type BlobStore interface {
	Upload(ctx context.Context, path, name string) (string, error)
	DownloadLatest(ctx context.Context, dest, ext string) error
}

// NoticePublisher carries backup lifecycle events toward the owner chat.
type NoticePublisher interface {
	Publish(ctx context.Context, notice model.BackupNotice) error
}

// BackupService produces restorable snapshots of the record store and
// moves them to and from the blob store. Notice delivery failures are
// logged, never propagated; a backup that uploaded fine is a success even
// if the owner could not be told so.
type BackupService struct {
	ownerID int64
	dumper  Dumper
	blob    BlobStore
	notices NoticePublisher
	tempDir string
	now     func() time.Time
}

func NewBackupService(ownerID int64, dumper Dumper, blob BlobStore, notices NoticePublisher) *BackupService {
	return &BackupService{
		ownerID: ownerID,
		dumper:  dumper,
		blob:    blob,
		notices: notices,
		tempDir: os.TempDir(),
		now:     time.Now,
	}
}

// BackupNow dumps the store, uploads the artifact and returns the share
// link. The local artifact is removed whatever the outcome.
func (s *BackupService) BackupNow(ctx context.Context, kind model.BackupKind) (string, error) {
	s.notify(ctx, kind, model.BackupStarted, "", "")

	prefix := "backup"
	if kind == model.BackupInitial || kind == model.BackupScheduled {
		prefix = "auto_backup"
	}
	name := fmt.Sprintf("%s_%s%s", prefix, s.now().Format("2006-01-02_15-04-05"), dumpExtension)
	path := filepath.Join(s.tempDir, name)
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove backup artifact failed: %v", err)
		}
	}()

	if err := s.dumper.Dump(ctx, path); err != nil {
		s.notify(ctx, kind, model.BackupFailed, "", err.Error())
		return "", err
	}

	link, err := s.blob.Upload(ctx, path, name)
	if err != nil {
		s.notify(ctx, kind, model.BackupFailed, "", err.Error())
		return "", err
	}

	s.notify(ctx, kind, model.BackupSucceeded, link, "")
	return link, nil
}

// RestoreLatest replaces the live store with the newest uploaded dump.
// Destructive; callers gate it behind explicit confirmation. A restart is
// advisable afterwards since pooled connections may be bound to replaced
// state.
func (s *BackupService) RestoreLatest(ctx context.Context) error {
	s.notify(ctx, model.RestoreRun, model.BackupStarted, "", "")

	path := filepath.Join(s.tempDir, fmt.Sprintf("restore_%d%s", s.now().UnixNano(), dumpExtension))
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove restore artifact failed: %v", err)
		}
	}()

	if err := s.blob.DownloadLatest(ctx, path, dumpExtension); err != nil {
		s.notify(ctx, model.RestoreRun, model.BackupFailed, "", err.Error())
		return err
	}

	if err := s.dumper.Restore(ctx, path); err != nil {
		s.notify(ctx, model.RestoreRun, model.BackupFailed, "", err.Error())
		return err
	}

	s.notify(ctx, model.RestoreRun, model.BackupSucceeded, "", "")
	return nil
}

func (s *BackupService) notify(ctx context.Context, kind model.BackupKind, stage model.BackupStage, link, reason string) {
	notice := model.BackupNotice{
		OwnerID: s.ownerID,
		Kind:    kind,
		Stage:   stage,
		Link:    link,
		Reason:  reason,
		At:      s.now(),
	}
	if err := s.notices.Publish(ctx, notice); err != nil {
		log.Printf("publish backup notice failed (kind=%s stage=%s): %v", kind, stage, err)
	}
}
