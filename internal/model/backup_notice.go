package model

import "time"

type BackupStage string

const (
	BackupStarted   BackupStage = "started"
	BackupSucceeded BackupStage = "succeeded"
	BackupFailed    BackupStage = "failed"
)

type BackupKind string

const (
	BackupInitial   BackupKind = "initial"
	BackupScheduled BackupKind = "scheduled"
	BackupManual    BackupKind = "manual"
	RestoreRun      BackupKind = "restore"
)

// BackupNotice travels over the notice queue from the backup path to the
// chat transport, so background runs report through the same channel as
// interactive flows.
type BackupNotice struct {
	OwnerID int64       `json:"owner_id"`
	Kind    BackupKind  `json:"kind"`
	Stage   BackupStage `json:"stage"`
	Link    string      `json:"link,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}
