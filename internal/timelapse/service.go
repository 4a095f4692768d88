package timelapse

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
	"lucarne/internal/daydir"
	"lucarne/internal/metrics"
)

// Encodes of different cameras run in parallel, but never more than
// this many at once; ffmpeg saturates a core per run.
const maxParallelEncodes = 2

// Service runs the two encoder loops. The frequent loop keeps a rolling
// video of today fresh; the daily loop finalizes a day once it is over.
type Service struct {
	store   *config.Store
	layout  daydir.Layout
	locks   *daydir.LockTable
	encoder Encoder
	queue   *Queue

	// OnFinalized runs after a day's timelapse landed, for derived
	// artifacts (daylight band, index pages, cameras.json).
	OnFinalized func(camera, day string)

	stopChan chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewService wires the encoder loops. queue is shared with the capture
// schedulers, which enqueue days as they gain content.
func NewService(store *config.Store, layout daydir.Layout, locks *daydir.LockTable, encoder Encoder, queue *Queue) *Service {
	return &Service{
		store:    store,
		layout:   layout,
		locks:    locks,
		encoder:  encoder,
		queue:    queue,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start launches the loops. The daily loop begins with a catch-up scan
// so days missed during downtime still get finalized.
func (s *Service) Start() {
	s.wg.Add(2)
	go s.frequentLoop()
	go s.dailyLoop()
	log.Info("Timelapse service started")
}

// Stop halts both loops and waits for any in-flight encode to finish.
func (s *Service) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("Timelapse service stopped")
}

func (s *Service) frequentLoop() {
	defer s.wg.Done()
	for {
		cfg := s.store.Current()
		interval := time.Duration(cfg.Timelapse.Frequent.IntervalS) * time.Second
		select {
		case <-s.stopChan:
			return
		case <-time.After(interval):
		}
		if !s.store.Current().Timelapse.Frequent.Enabled {
			continue
		}
		s.encodeToday()
	}
}

// encodeToday re-encodes the rolling video of the current day for every
// enabled camera, a bounded number of cameras at a time.
func (s *Service) encodeToday() {
	cfg := s.store.Current()
	sem := make(chan struct{}, maxParallelEncodes)
	var wg sync.WaitGroup

	for name, cam := range cfg.Cameras {
		if cam.Disabled {
			continue
		}
		day := s.now().In(cam.Location()).Format(daydir.DayFormat)
		wg.Add(1)
		go func(name, day string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-s.stopChan:
				return
			default:
			}

			dayDir := filepath.Join(s.layout.CameraDir(name), day)
			output := filepath.Join(dayDir, day+"-rolling."+cfg.Timelapse.Frequent.FileExtension)
			opts := Options{
				Framerate: cfg.Timelapse.Frequent.Framerate,
				ExtraArgs: cfg.Timelapse.Frequent.FFmpegOptions,
			}
			if err := s.encodeDay(name, day, dayDir, output, opts, "rolling"); err != nil {
				log.Warnf("Camera %s: rolling timelapse for %s failed: %v", name, day, err)
			}
		}(name, day)
	}
	wg.Wait()
}

// encodeDay lists the day's frames under the day lock, then encodes
// from the pinned list. kind labels metrics ("rolling" or "daily").
func (s *Service) encodeDay(camera, day, dayDir, output string, opts Options, kind string) error {
	lock := s.locks.Lock(camera, day)
	lock.Lock()
	images, err := daydir.ListImages(dayDir)
	lock.Unlock()
	if err != nil {
		return err
	}
	// A single frame makes a useless video; wait for more.
	if len(images) < 2 {
		return nil
	}

	start := s.now()
	ctx, cancel := contextFromStop(s.stopChan)
	defer cancel()
	err = s.encoder.Encode(ctx, images, output, opts)
	metrics.TimelapseEncodeDuration.WithLabelValues(camera, kind).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		metrics.TimelapseEncodeFailures.WithLabelValues(camera, kind).Inc()
		return err
	}
	metrics.TimelapseEncodesTotal.WithLabelValues(camera, kind).Inc()
	log.Infof("Camera %s: encoded %s timelapse %s from %d frames", camera, kind, filepath.Base(output), len(images))
	return nil
}

func (s *Service) dailyLoop() {
	defer s.wg.Done()
	s.catchUp()
	s.drainQueue()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.drainQueue()
		}
	}
}

// catchUp enqueues every past day directory that has frames but no
// finalized timelapse yet.
func (s *Service) catchUp() {
	cfg := s.store.Current()
	ext := cfg.Timelapse.Daily.FileExtension
	for name, cam := range cfg.Cameras {
		today := s.now().In(cam.Location()).Format(daydir.DayFormat)
		days, err := s.layout.ListDayDirs(name)
		if err != nil {
			log.Warnf("Camera %s: day scan failed: %v", name, err)
			continue
		}
		for _, day := range days {
			if day >= today {
				continue
			}
			dayDir := filepath.Join(s.layout.CameraDir(name), day)
			if daydir.HasDailyTimelapse(dayDir, ext) {
				continue
			}
			s.queue.Enqueue(name, day)
		}
	}
	if n := s.queue.Len(); n > 0 {
		log.Infof("Timelapse catch-up found %d pending days", n)
	}
}

// drainQueue finalizes every queued day that is already over. Today's
// entries stay queued until their day rolls over.
func (s *Service) drainQueue() {
	cfg := s.store.Current()
	if !cfg.Timelapse.Daily.Enabled {
		return
	}
	for _, it := range s.queue.Snapshot() {
		select {
		case <-s.stopChan:
			return
		default:
		}
		cam, ok := cfg.Cameras[it.Camera]
		if !ok {
			// Camera removed from the configuration; its queued days
			// are orphaned and dropped.
			s.queue.Remove(it.Camera, it.Day)
			continue
		}
		today := s.now().In(cam.Location()).Format(daydir.DayFormat)
		if it.Day >= today {
			continue
		}
		if err := s.finalize(cfg, it.Camera, it.Day); err != nil {
			log.Errorf("Camera %s: finalizing %s failed: %v", it.Camera, it.Day, err)
			continue
		}
		s.queue.Remove(it.Camera, it.Day)
	}
}

// finalize encodes the definitive timelapse of a finished day and runs
// the derived-artifact hook. Idempotent: an already encoded day only
// re-runs the hook.
func (s *Service) finalize(cfg *config.Config, camera, day string) error {
	dayDir := filepath.Join(s.layout.CameraDir(camera), day)
	ext := cfg.Timelapse.Daily.FileExtension
	if !daydir.HasDailyTimelapse(dayDir, ext) {
		images, err := daydir.ListImages(dayDir)
		if err != nil {
			return err
		}
		if len(images) < 2 {
			// Not enough material for a video; the day is dequeued and
			// stays unarchived.
			log.Infof("Camera %s: day %s has %d frames, skipping timelapse", camera, day, len(images))
			return nil
		}
		output := filepath.Join(dayDir, day+"."+ext)
		opts := Options{
			Framerate: cfg.Timelapse.Daily.Framerate,
			ExtraArgs: cfg.Timelapse.Daily.FFmpegOptions,
			TwoPass:   cfg.Timelapse.Daily.TwoPass,
		}
		if err := s.encodeDay(camera, day, dayDir, output, opts, "daily"); err != nil {
			return err
		}
	}
	if s.OnFinalized != nil {
		s.OnFinalized(camera, day)
	}
	return nil
}

// contextFromStop adapts the stop channel to a context so an in-flight
// ffmpeg run dies promptly on shutdown.
func contextFromStop(stop <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
