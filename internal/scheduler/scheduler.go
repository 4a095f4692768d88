package scheduler

import (
	"bytes"
	"context"
	"errors"
	"image"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"

	"lucarne/internal/capture"
	"lucarne/internal/config"
	"lucarne/internal/daydir"
	"lucarne/internal/exif"
	"lucarne/internal/history"
	"lucarne/internal/metrics"
	"lucarne/internal/mqtt"
	"lucarne/internal/postprocess"
	"lucarne/internal/registry"
	"lucarne/internal/similarity"
	"lucarne/internal/sun"
)

// DayQueue receives days that gained new content and need (re)encoding
// once they roll over. Enqueue must be idempotent.
type DayQueue interface {
	Enqueue(camera, day string)
}

// Scheduler drives one camera: capture, score, persist, adapt. It is
// the single writer of its camera's registry entry and of its day
// directories (sharing the per-day lock with the archival side).
type Scheduler struct {
	cam      *config.CameraConfig
	global   config.GlobalConfig
	source   capture.Source
	pipeline postprocess.Pipeline
	ctrl     *IntervalController
	suncalc  *sun.Calculator

	layout  daydir.Layout
	locks   *daydir.LockTable
	reg     *registry.Registry
	queue   DayQueue
	hist    *history.Service
	publish *mqtt.Publisher

	cfgCh      chan *config.CameraConfig
	captureNow chan chan error
	previewCh  chan previewRequest

	prevImage image.Image
	mode      exif.Mode
	failures  int
	boff      *backoff.ExponentialBackOff

	// now is swappable for tests.
	now func() time.Time
}

// New builds a scheduler for one camera.
func New(cam *config.CameraConfig, global config.GlobalConfig, layout daydir.Layout,
	locks *daydir.LockTable, reg *registry.Registry, queue DayQueue,
	hist *history.Service, publish *mqtt.Publisher) (*Scheduler, error) {

	pipeline, err := postprocess.Build(cam.Postprocessing)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cam:        cam,
		global:     global,
		source:     capture.NewSource(cam, global.UserAgent),
		pipeline:   pipeline,
		ctrl:       NewIntervalController(cam.IntervalMinS, cam.IntervalMaxS, cam.IntervalGrowFactor, cam.IntervalShrinkFactor, cam.SSIMSetpoint),
		layout:     layout,
		locks:      locks,
		reg:        reg,
		queue:      queue,
		hist:       hist,
		publish:    publish,
		cfgCh:      make(chan *config.CameraConfig, 1),
		captureNow: make(chan chan error, 1),
		previewCh:  make(chan previewRequest, 1),
		now:        time.Now,
	}
	if cam.SunriseSunset.Enabled && cam.HasCoordinates() {
		s.suncalc = &sun.Calculator{Lat: cam.Latitude, Lon: cam.Longitude}
	}
	s.boff = backoff.NewExponentialBackOff()
	s.boff.InitialInterval = time.Duration(cam.BackoffInitialS) * time.Second
	s.boff.MaxInterval = time.Duration(cam.BackoffMaxS) * time.Second
	s.boff.MaxElapsedTime = 0
	s.boff.RandomizationFactor = 0.2
	return s, nil
}

// UpdateConfig hands a new camera configuration to the running loop.
// Non-blocking: a pending update is simply replaced by the newer one.
func (s *Scheduler) UpdateConfig(cam *config.CameraConfig) {
	for {
		select {
		case s.cfgCh <- cam:
			return
		default:
			select {
			case <-s.cfgCh:
			default:
			}
		}
	}
}

// TriggerCapture requests an immediate out-of-cycle capture and blocks
// until it completes or ctx expires.
func (s *Scheduler) TriggerCapture(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case s.captureNow <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type previewRequest struct {
	ctx   context.Context
	reply chan previewReply
}

type previewReply struct {
	data []byte
	err  error
}

// CapturePreview grabs and postprocesses a frame without persisting it
// or touching the adaptive state. Used by the admin UI. The capture
// runs on the scheduler goroutine so the source and pipeline are never
// read concurrently with a config reload.
func (s *Scheduler) CapturePreview(ctx context.Context) ([]byte, error) {
	req := previewRequest{ctx: ctx, reply: make(chan previewReply, 1)}
	select {
	case s.previewCh <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) preview(ctx context.Context) previewReply {
	ctx, cancel := context.WithTimeout(ctx, s.cam.Timeout())
	defer cancel()
	res, err := s.source.Capture(ctx)
	if err != nil {
		return previewReply{err: err}
	}
	if len(s.pipeline) == 0 {
		return previewReply{data: res.Data}
	}
	img, err := s.pipeline.Apply(res.Image, res.Timestamp)
	if err != nil {
		return previewReply{err: err}
	}
	data, err := encodeJPEG(img)
	return previewReply{data: data, err: err}
}

// Run executes the capture loop until ctx is canceled. It never
// returns early on camera failure; fault containment means a broken
// camera keeps retrying in backoff forever.
func (s *Scheduler) Run(ctx context.Context) {
	name := s.cam.Name
	log.Infof("Camera %s: scheduler starting", name)
	s.reg.Update(name, func(st *registry.State) {
		st.Phase = registry.PhaseStarting
		st.IntervalS = s.ctrl.Current()
	})

	bootstrapping := true

	for {
		// First capture fires immediately; afterwards we sleep the
		// chosen interval.
		if err := s.captureOnce(ctx); err == nil {
			if s.prevImage != nil {
				bootstrapping = false
			}
		} else if ctx.Err() != nil {
			break
		}

		var wait time.Duration
		switch {
		case s.failures >= s.cam.FailureThreshold:
			wait = s.boff.NextBackOff()
			s.reg.Update(name, func(st *registry.State) {
				st.Phase = registry.PhaseBackoff
				st.NextCapture = s.now().Add(wait)
			})
			log.Warnf("Camera %s: %d consecutive failures, backing off %s", name, s.failures, wait.Round(time.Second))
		case bootstrapping:
			wait = time.Duration(s.cam.BootstrapIntervalS * float64(time.Second))
			s.setWaiting(wait)
		default:
			wait = s.sleepInterval()
			s.setWaiting(wait)
		}

		if !s.wait(ctx, wait) {
			break
		}
	}

	s.reg.Update(name, func(st *registry.State) { st.Phase = registry.PhaseStopped })
	log.Infof("Camera %s: scheduler stopped", name)
}

func (s *Scheduler) setWaiting(wait time.Duration) {
	s.reg.Update(s.cam.Name, func(st *registry.State) {
		st.Phase = registry.PhaseWaiting
		st.IntervalS = s.ctrl.Current()
		st.NextCapture = s.now().Add(wait)
	})
}

// sleepInterval picks the next sleep: the fixed interval if configured,
// otherwise the adaptive one, overridden by the fast interval near
// sunrise or sunset. The override never modifies the stored adaptive
// interval.
func (s *Scheduler) sleepInterval() time.Duration {
	interval := s.ctrl.Current()
	if s.cam.FixedInterval() {
		interval = s.cam.SnapIntervalS
	}
	if s.suncalc != nil {
		localNow := s.now().In(s.cam.Location())
		if s.suncalc.NearEvent(localNow, s.cam.SunWindow()) {
			fast := s.global.SunriseSunsetIntervalS
			if fast < interval {
				interval = fast
			}
		}
	}
	return time.Duration(interval * float64(time.Second))
}

// wait sleeps for d but wakes early for config updates, manual capture
// triggers and shutdown. Returns false on shutdown.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case cam := <-s.cfgCh:
			s.applyConfig(cam)
			// Fall through to a fresh capture with the new settings.
			return true
		case done := <-s.captureNow:
			done <- s.captureOnce(ctx)
		case req := <-s.previewCh:
			req.reply <- s.preview(req.ctx)
		}
	}
}

func (s *Scheduler) applyConfig(cam *config.CameraConfig) {
	log.Infof("Camera %s: applying updated configuration", cam.Name)
	pipeline, err := postprocess.Build(cam.Postprocessing)
	if err != nil {
		// Validation happens at load time; reaching this is a bug.
		log.Errorf("Camera %s: postprocess rebuild failed: %v", cam.Name, err)
		return
	}
	s.cam = cam
	s.pipeline = pipeline
	s.source = capture.NewSource(cam, s.global.UserAgent)
	s.ctrl.SetBounds(cam.IntervalMinS, cam.IntervalMaxS, cam.IntervalGrowFactor, cam.IntervalShrinkFactor, cam.SSIMSetpoint)
	s.suncalc = nil
	if cam.SunriseSunset.Enabled && cam.HasCoordinates() {
		s.suncalc = &sun.Calculator{Lat: cam.Latitude, Lon: cam.Longitude}
	}
}

// captureOnce runs one full capture cycle: fetch, decode, score,
// persist, fan out. All failure paths count toward backoff; no failure
// path ever persists a frame.
func (s *Scheduler) captureOnce(ctx context.Context) error {
	name := s.cam.Name
	s.reg.Update(name, func(st *registry.State) { st.Phase = registry.PhaseCapturing })

	start := s.now()
	cctx, cancel := context.WithTimeout(ctx, s.cam.Timeout())
	res, err := s.source.Capture(cctx)
	cancel()
	metrics.CaptureDuration.WithLabelValues(name).Observe(s.now().Sub(start).Seconds())

	if err != nil {
		s.recordFailure(err)
		return err
	}

	img := res.Image
	data := res.Data
	if len(s.pipeline) > 0 {
		processed, perr := s.pipeline.Apply(res.Image, res.Timestamp)
		if perr != nil {
			s.recordFailure(perr)
			return perr
		}
		encoded, eerr := encodeJPEG(processed)
		if eerr != nil {
			s.recordFailure(eerr)
			return eerr
		}
		img = processed
		data = encoded
	}

	ssimArea, _ := config.ParseRect(s.cam.SSIMArea)
	score := similarity.Compare(s.prevImage, img, ssimArea)
	interval := s.ctrl.Current()
	if s.prevImage != nil && !s.cam.FixedInterval() {
		interval = s.ctrl.Observe(score)
	}

	localTS := res.Timestamp.In(s.cam.Location())
	period := sun.PeriodDay
	if s.suncalc != nil {
		period = s.suncalc.PeriodAt(localTS, s.cam.SunWindow())
	}
	mode := exif.Classify(res.Exposure, period, s.mode, exif.DefaultThresholds)
	if mode != exif.ModeUnknown && mode != s.mode {
		log.Infof("Camera %s: mode %s -> %s", name, s.mode, mode)
		s.mode = mode
	}

	day := localTS.Format(daydir.DayFormat)
	lock := s.locks.Lock(name, day)
	lock.Lock()
	path, werr := s.layout.WriteImage(name, localTS, data)
	lock.Unlock()
	if werr != nil {
		s.recordFailure(werr)
		return werr
	}

	meta := daydir.Metadata{
		Camera:    name,
		Timestamp: localTS,
		Path:      path,
		SSIM:      score,
		IntervalS: interval,
		Mode:      s.mode.String(),
	}
	if err := s.layout.WriteLatest(name, data, meta); err != nil {
		// The dated image is already safe; a failed latest.jpg only
		// leaves the UI stale until the next cycle.
		log.Warnf("Camera %s: latest.jpg update failed: %v", name, err)
	}

	s.prevImage = img
	s.failures = 0
	s.boff.Reset()

	s.reg.Update(name, func(st *registry.State) {
		st.Phase = registry.PhaseWaiting
		st.Mode = s.mode.String()
		st.IntervalS = interval
		st.LastSSIM = score
		st.ConsecutiveFailures = 0
		st.LastError = ""
		st.LastSuccess = localTS
		st.LastImage = &registry.ImageRef{
			Path:      path,
			Timestamp: localTS,
			ExposureS: res.Exposure.Seconds,
			ISO:       res.Exposure.ISO,
		}
	})

	if s.queue != nil {
		s.queue.Enqueue(name, day)
	}
	s.hist.Record(history.CaptureEvent{
		Camera:    name,
		Timestamp: localTS,
		Path:      path,
		SSIM:      score,
		IntervalS: interval,
		ExposureS: res.Exposure.Seconds,
		ISO:       res.Exposure.ISO,
		Mode:      s.mode.String(),
	})

	metrics.CapturesTotal.WithLabelValues(name).Inc()
	metrics.SSIMScore.WithLabelValues(name).Set(score)
	metrics.CaptureInterval.WithLabelValues(name).Set(interval)
	metrics.ConsecutiveFailures.WithLabelValues(name).Set(0)
	metrics.CameraMode.WithLabelValues(name).Set(float64(modeGauge(s.mode)))

	if snap, ok := s.reg.Snapshot(name); ok {
		s.publish.PublishState(snap)
	}
	return nil
}

func (s *Scheduler) recordFailure(err error) {
	name := s.cam.Name
	s.failures++
	metrics.CaptureFailuresTotal.WithLabelValues(name).Inc()
	metrics.ConsecutiveFailures.WithLabelValues(name).Set(float64(s.failures))

	level := log.WarnLevel
	if errors.Is(err, capture.ErrCorruptImage) {
		level = log.ErrorLevel
	}
	log.StandardLogger().Logf(level, "Camera %s: capture failed (%d consecutive): %v", name, s.failures, err)

	s.reg.Update(name, func(st *registry.State) {
		st.ConsecutiveFailures = s.failures
		st.LastError = err.Error()
	})
	if snap, ok := s.reg.Snapshot(name); ok {
		s.publish.PublishState(snap)
	}
}

func modeGauge(m exif.Mode) int {
	switch m {
	case exif.ModeNight:
		return 1
	case exif.ModeAstro:
		return 2
	default:
		return 0
	}
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
