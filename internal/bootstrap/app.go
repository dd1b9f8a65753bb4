package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appsvc "notekeeper/internal/app"
	"notekeeper/internal/bot"
	"notekeeper/internal/config"
	"notekeeper/internal/model"
	"notekeeper/internal/pkg/htmltitle"
	"notekeeper/internal/platform/gdrive"
	mysqlClient "notekeeper/internal/platform/mysql"
	rabbitmqClient "notekeeper/internal/platform/rabbitmq"
	redisClient "notekeeper/internal/platform/redis"
	"notekeeper/internal/platform/telegram"
	"notekeeper/internal/repository"
	"notekeeper/internal/scheduler"
	"notekeeper/internal/session"
	"notekeeper/internal/worker"
)

type App struct {
	Config  *config.Config
	MySQL   *gorm.DB
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Records *appsvc.RecordService
	Backups *appsvc.BackupService
	Machine *bot.Machine

	noticeWorker    *worker.NoticeWorker
	backupScheduler *scheduler.BackupScheduler

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(&model.Record{}); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	// Redis is optional; without it sessions live in process memory and
	// do not survive restarts.
	var redisCli *redis.Client
	if cfg.Redis.Addr != "" {
		redisCli, err = redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	tg := telegram.NewClient(cfg.Bot.Token)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify bot token failed: %w", err)
	}
	log.Printf("bot authorized as @%s (id=%d)", me.Username, me.ID)

	sessionTTL := time.Duration(cfg.Redis.SessionTTLMinutes) * time.Minute
	var sessions session.Store
	if redisCli != nil {
		sessions = session.NewRedisStore(redisCli, sessionTTL)
	} else {
		sessions = session.NewMemoryStore(sessionTTL)
	}

	recordRepo := repository.NewRecordRepository(mysqlDB)
	records := appsvc.NewRecordService(recordRepo)

	noticePublisher := rabbitmqClient.NewNoticePublisher(mqConn, cfg.RabbitMQ.BackupNoticeQueue)
	dumper := appsvc.NewMySQLDumper(cfg)
	drive := gdrive.NewClient(cfg.Backup.DriveKeyFile, cfg.Backup.DriveFolder)
	backups := appsvc.NewBackupService(cfg.Bot.OwnerID, dumper, drive, noticePublisher)

	titles := htmltitle.NewFetcher(5 * time.Second)
	gate := bot.NewGate(cfg.Bot.OwnerID)
	machine := bot.NewMachine(gate, records, backups, sessions, tg, titles)

	noticeWorker := worker.NewNoticeWorker(mqConn, tg, cfg.RabbitMQ.BackupNoticeQueue)
	if err := noticeWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start notice worker failed: %w", err)
	}

	backupScheduler := scheduler.NewBackupScheduler(backups, time.Duration(cfg.Backup.IntervalHours)*time.Hour)
	backupScheduler.Start(ctx)

	return &App{
		Config:          cfg,
		MySQL:           mysqlDB,
		Redis:           redisCli,
		MQConn:          mqConn,
		Records:         records,
		Backups:         backups,
		Machine:         machine,
		noticeWorker:    noticeWorker,
		backupScheduler: backupScheduler,
		StartedAt:       time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.backupScheduler != nil {
		a.backupScheduler.Close()
	}
	if a.noticeWorker != nil {
		a.noticeWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
