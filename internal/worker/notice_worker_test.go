package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"notekeeper/internal/model"
)

func TestNoticeText(t *testing.T) {
	tests := []struct {
		name   string
		notice model.BackupNotice
		want   string
	}{
		{
			name:   "manual started",
			notice: model.BackupNotice{Kind: model.BackupManual, Stage: model.BackupStarted},
			want:   "💾 Manual backup started...",
		},
		{
			name:   "scheduled success with link",
			notice: model.BackupNotice{Kind: model.BackupScheduled, Stage: model.BackupSucceeded, Link: "https://drive.example/x"},
			want:   "✅ Scheduled backup finished.\n🔗 https://drive.example/x",
		},
		{
			name:   "initial success without link",
			notice: model.BackupNotice{Kind: model.BackupInitial, Stage: model.BackupSucceeded},
			want:   "✅ Initial backup finished.",
		},
		{
			name:   "manual failure carries reason",
			notice: model.BackupNotice{Kind: model.BackupManual, Stage: model.BackupFailed, Reason: "mysqldump failed: Access denied"},
			want:   "❌ Manual backup failed: mysqldump failed: Access denied",
		},
		{
			name:   "restore started",
			notice: model.BackupNotice{Kind: model.RestoreRun, Stage: model.BackupStarted},
			want:   "🔄 Restore started...",
		},
		{
			name:   "restore success",
			notice: model.BackupNotice{Kind: model.RestoreRun, Stage: model.BackupSucceeded},
			want:   "✅ Restore finished. Restart the service so all connections pick up the restored data.",
		},
		{
			name:   "restore failure",
			notice: model.BackupNotice{Kind: model.RestoreRun, Stage: model.BackupFailed, Reason: "no backup artifact found"},
			want:   "❌ Restore failed: no backup artifact found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NoticeText(tt.notice))
		})
	}
}
