package app

import (
	"context"
	"image"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/admin"
	"lucarne/internal/archive"
	"lucarne/internal/config"
	"lucarne/internal/daydir"
	"lucarne/internal/daylight"
	"lucarne/internal/history"
	"lucarne/internal/mqtt"
	"lucarne/internal/registry"
	"lucarne/internal/scheduler"
	"lucarne/internal/sse"
	"lucarne/internal/timelapse"
	"lucarne/internal/web"
)

// cameraTask tracks one running scheduler goroutine.
type cameraTask struct {
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
	done   chan struct{}
}

// App owns the whole process: all services, the camera schedulers and
// the reload machinery.
type App struct {
	cfgPath string
	store   *config.Store

	hub       *sse.Hub
	reg       *registry.Registry
	hist      *history.Service
	publisher *mqtt.Publisher
	layout    daydir.Layout
	locks     *daydir.LockTable
	queue     *timelapse.Queue
	encoder   *timelapse.FFmpegEncoder
	tlService *timelapse.Service
	arService *archive.Service
	webServer *web.Server
	adminSrv  *admin.Server

	mu    sync.Mutex
	tasks map[string]*cameraTask
	wg    sync.WaitGroup

	rootCtx context.Context
}

// New assembles the application around an already loaded configuration.
func New(cfgPath string, cfg *config.Config) (*App, error) {
	a := &App{
		cfgPath: cfgPath,
		store:   config.NewStore(cfg),
		tasks:   make(map[string]*cameraTask),
	}

	a.hub = sse.NewHub()
	a.reg = registry.New(a.hub)
	a.layout = daydir.Layout{Root: cfg.PhotoRoot()}
	a.locks = daydir.NewLockTable()
	a.queue = timelapse.NewQueue()
	a.encoder = timelapse.NewFFmpegEncoder(cfg.Timelapse.TmpDir)

	hist, err := history.NewService(cfg.History)
	if err != nil {
		return nil, err
	}
	a.hist = hist

	a.publisher = mqtt.NewPublisher(cfg.MQTT)

	a.tlService = timelapse.NewService(a.store, a.layout, a.locks, a.encoder, a.queue)
	a.tlService.OnFinalized = a.onDayFinalized

	archiver := &archive.Archiver{
		Layout:   a.layout,
		Locks:    a.locks,
		DailyExt: cfg.Timelapse.Daily.FileExtension,
	}
	budget := &archive.BudgetEnforcer{
		Layout:   a.layout,
		Locks:    a.locks,
		Registry: a.reg,
		DailyExt: cfg.Timelapse.Daily.FileExtension,
	}
	a.arService = archive.NewService(a.store, archiver, budget)

	a.webServer = web.NewServer(cfg)
	a.adminSrv = admin.NewServer(cfg, admin.Deps{
		Store:      a.store,
		Registry:   a.reg,
		Hub:        a.hub,
		History:    a.hist,
		Controller: a,
		Reloader:   a,
	})

	return a, nil
}

// Run starts everything and blocks until ctx is canceled (or SIGINT/
// SIGTERM arrives), then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	a.rootCtx = ctx

	cfg := a.store.Current()
	if err := os.MkdirAll(a.layout.Root, 0o755); err != nil {
		return err
	}

	go a.hub.Run()
	a.hist.Start()
	if err := a.publisher.Start(); err != nil {
		log.Warnf("MQTT start failed, continuing without initial connection: %v", err)
	}
	a.publisher.AnnounceCameras(cameraNames(cfg))

	if err := web.WriteMetadata(cfg, a.layout, cfg.Global.WorkDir); err != nil {
		log.Warnf("cameras.json write failed: %v", err)
	}

	a.tlService.Start()
	a.arService.Start()
	a.webServer.Start()
	a.adminSrv.Start()

	a.reconcileCameras(cfg)
	go a.watchReloads(ctx)

	<-ctx.Done()
	log.Info("Shutdown requested")

	// Stop cameras first so no new work enters the pipelines.
	a.mu.Lock()
	for _, t := range a.tasks {
		t.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()

	a.tlService.Stop()
	a.arService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.adminSrv.Stop(shutdownCtx)
	a.webServer.Stop(shutdownCtx)

	a.publisher.Stop()
	a.hist.Stop()
	a.hub.Stop()

	log.Info("Shutdown complete")
	return nil
}

// reconcileCameras brings the running scheduler set in line with the
// configuration: start new and re-enabled cameras, stop removed and
// disabled ones, push updated settings to survivors.
func (a *App) reconcileCameras(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, task := range a.tasks {
		cam, ok := cfg.Cameras[name]
		if ok && !cam.Disabled {
			task.sched.UpdateConfig(cam)
			continue
		}
		log.Infof("Camera %s: stopping (removed or disabled)", name)
		task.cancel()
		<-task.done
		delete(a.tasks, name)
		a.reg.Remove(name)
	}

	for name, cam := range cfg.Cameras {
		if cam.Disabled {
			continue
		}
		if _, running := a.tasks[name]; running {
			continue
		}
		sched, err := scheduler.New(cam, cfg.Global, a.layout, a.locks, a.reg, a.queue, a.hist, a.publisher)
		if err != nil {
			log.Errorf("Camera %s: scheduler build failed: %v", name, err)
			continue
		}
		a.reg.Register(name)
		camCtx, cancel := context.WithCancel(a.rootCtx)
		task := &cameraTask{sched: sched, cancel: cancel, done: make(chan struct{})}
		a.tasks[name] = task
		a.wg.Add(1)
		go func(t *cameraTask) {
			defer a.wg.Done()
			defer close(t.done)
			t.sched.Run(camCtx)
		}(task)
	}
}

// onDayFinalized builds the derived artifacts of a freshly finalized
// day: daylight band, monthly composite, index page, cameras.json.
func (a *App) onDayFinalized(camera, day string) {
	cfg := a.store.Current()
	cam, ok := cfg.Cameras[camera]
	if !ok {
		return
	}

	dayDir := a.layout.DayDirName(camera, day)
	var skyArea *image.Rectangle
	if r, err := config.ParseRect(cam.SkyArea); err == nil {
		skyArea = r
	}

	lock := a.locks.Lock(camera, day)
	lock.Lock()
	err := daylight.BuildBand(dayDir, skyArea)
	lock.Unlock()
	if err != nil {
		log.Warnf("Camera %s: daylight band for %s failed: %v", camera, day, err)
		return
	}

	if t, terr := time.Parse(daydir.DayFormat, day); terr == nil {
		if _, err := daylight.BuildMonthly(a.layout.CameraDir(camera), t.Year(), t.Month()); err != nil {
			log.Warnf("Camera %s: monthly composite failed: %v", camera, err)
		}
		if err := daylight.WriteIndex(a.layout.CameraDir(camera), camera); err != nil {
			log.Warnf("Camera %s: daylight index failed: %v", camera, err)
		}
	}

	if err := web.WriteMetadata(cfg, a.layout, cfg.Global.WorkDir); err != nil {
		log.Warnf("cameras.json update failed: %v", err)
	}
}

// TriggerCapture implements admin.CameraController.
func (a *App) TriggerCapture(ctx context.Context, camera string) error {
	a.mu.Lock()
	task, ok := a.tasks[camera]
	a.mu.Unlock()
	if !ok {
		return admin.ErrUnknownCamera
	}
	return task.sched.TriggerCapture(ctx)
}

// CapturePreview implements admin.CameraController.
func (a *App) CapturePreview(ctx context.Context, camera string) ([]byte, error) {
	a.mu.Lock()
	task, ok := a.tasks[camera]
	a.mu.Unlock()
	if !ok {
		return nil, admin.ErrUnknownCamera
	}
	return task.sched.CapturePreview(ctx)
}

func cameraNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Cameras))
	for name, cam := range cfg.Cameras {
		if !cam.Disabled {
			names = append(names, name)
		}
	}
	return names
}
