package bootstrap

import (
	"fmt"
	"os"

	cataloginadapter "leaflog/internal/modules/catalog/adapter/in"
	catalogoutadapter "leaflog/internal/modules/catalog/adapter/out"
	catalogservice "leaflog/internal/modules/catalog/service"
	catalogusecase "leaflog/internal/modules/catalog/usecase"
	rewarddomain "leaflog/internal/modules/reward/domain"
	sessioninadapter "leaflog/internal/modules/session/adapter/in"
	sessionoutadapter "leaflog/internal/modules/session/adapter/out"
	sessionout "leaflog/internal/modules/session/port/out"
	sessionservice "leaflog/internal/modules/session/service"
	sessionusecase "leaflog/internal/modules/session/usecase"
	snapshotinadapter "leaflog/internal/modules/snapshot/adapter/in"
	snapshotoutadapter "leaflog/internal/modules/snapshot/adapter/out"
	snapshotservice "leaflog/internal/modules/snapshot/service"
	snapshotusecase "leaflog/internal/modules/snapshot/usecase"
	syncinadapter "leaflog/internal/modules/sync/adapter/in"
	syncoutadapter "leaflog/internal/modules/sync/adapter/out"
	syncservice "leaflog/internal/modules/sync/service"
	syncusecase "leaflog/internal/modules/sync/usecase"
	"leaflog/internal/platform/clock"
	"leaflog/internal/platform/config"
	"leaflog/internal/platform/db"
	"leaflog/internal/platform/id"
)

type App struct {
	BookCLI     cataloginadapter.CLIHandler
	SessionCLI  sessioninadapter.CLIHandler
	SyncCLI     syncinadapter.CLIHandler
	SnapshotCLI snapshotinadapter.CLIHandler
}

func New(cfg config.Config) (*App, error) {
	clk := clock.SystemClock{}
	ids := id.UUID{}

	handle, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	bookStore, err := catalogoutadapter.NewSQLiteBookStore(handle)
	if err != nil {
		return nil, fmt.Errorf("new book store: %w", err)
	}
	catalogUC := catalogusecase.NewInteractor(catalogservice.NewBookService(clk, ids, bookStore))

	sessionStore, err := sessionoutadapter.NewSQLiteStore(handle, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("new session store: %w", err)
	}

	pairStore := syncoutadapter.NewFilePairStore(cfg.SyncDir)
	peerStore := syncoutadapter.NewFilePeerStore(cfg.SyncDir)
	queueStore := syncoutadapter.NewFileQueueStore(cfg.SyncDir)
	activityStore := syncoutadapter.NewFileActivityStore(cfg.SyncDir)
	daemonStore := syncoutadapter.NewFileDaemonStore(cfg.SyncDir)
	ipcClient := syncoutadapter.NewJSONRPCClient()

	syncSvc := syncservice.NewSyncService(cfg.DataPath, clk, ids, sessionStore, syncservice.Deps{
		Pairs:     pairStore,
		Peers:     peerStore,
		Queue:     queueStore,
		Activity:  activityStore,
		Daemons:   daemonStore,
		Transport: syncoutadapter.NewLibp2pTransport(),
		IPCServer: syncoutadapter.NewJSONRPCServer(),
		IPCClient: ipcClient,
	})
	syncUC := syncusecase.NewInteractor(syncSvc)
	publisher := syncservice.NewPublisher(pairStore, queueStore, activityStore, daemonStore, ipcClient, clk, ids)

	snapshotSvc := snapshotservice.NewSnapshotService(clk, sessionStore, catalogUC, snapshotoutadapter.NewFileWriter(cfg.SnapshotPath))
	snapshotUC := snapshotusecase.NewInteractor(snapshotSvc)

	sessionUC := sessionusecase.NewInteractor(
		sessionservice.NewSessionService(clk, ids, sessionStore),
		catalogUC,
		clk,
		sessionusecase.Options{
			Policy: rewarddomain.GracePolicy{
				WindowDays:    cfg.Settings.GraceWindowDays,
				MinStreakDays: cfg.Settings.GraceMinAgeDays,
			},
			ExpireThreshold: cfg.AutoExpireThreshold(),
			DebounceQuiet:   cfg.DebounceQuietPeriod(),
			Fanout:          publisher,
			Listeners:       []sessionout.Listener{snapshotSvc},
		},
	)

	return &App{
		BookCLI:     cataloginadapter.NewCLIHandler(catalogUC),
		SessionCLI:  sessioninadapter.NewCLIHandler(sessionUC),
		SyncCLI:     syncinadapter.NewCLIHandler(syncUC),
		SnapshotCLI: snapshotinadapter.NewCLIHandler(snapshotUC),
	}, nil
}
