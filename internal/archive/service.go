package archive

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
)

// Archive sweeps run on a fixed hourly cadence; a missed day is picked
// up one pass later at worst.
const sweepInterval = time.Hour

// Service runs the periodic archive sweep and, when storage management
// is enabled, the disk budget enforcement loop.
type Service struct {
	store    *config.Store
	archiver *Archiver
	budget   *BudgetEnforcer

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService bundles the archiver and budget enforcer into one
// lifecycle.
func NewService(store *config.Store, archiver *Archiver, budget *BudgetEnforcer) *Service {
	return &Service{
		store:    store,
		archiver: archiver,
		budget:   budget,
		stopChan: make(chan struct{}),
	}
}

// Start launches the loops. An initial sweep runs shortly after start
// so a restart does not wait an hour to catch up.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.archiveLoop()

	if s.store.Current().Global.Storage.Enabled {
		s.wg.Add(1)
		go s.budgetLoop()
	}
	log.Info("Archive service started")
}

// Stop halts the loops and waits for an in-flight pass to finish.
func (s *Service) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	log.Info("Archive service stopped")
}

func (s *Service) archiveLoop() {
	defer s.wg.Done()

	// Small initial delay so startup is not dominated by a sweep.
	select {
	case <-s.stopChan:
		return
	case <-time.After(time.Minute):
	}
	s.sweep()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	cfg := s.store.Current()
	for name, cam := range cfg.Cameras {
		select {
		case <-s.stopChan:
			return
		default:
		}
		if err := s.archiver.SweepCamera(name, cam.Location()); err != nil {
			log.Warnf("Camera %s: archive sweep failed: %v", name, err)
		}
	}
}

func (s *Service) budgetLoop() {
	defer s.wg.Done()
	for {
		cfg := s.store.Current()
		interval := time.Duration(cfg.Global.Storage.CheckIntervalS) * time.Second
		select {
		case <-s.stopChan:
			return
		case <-time.After(interval):
		}
		cfg = s.store.Current()
		if !cfg.Global.Storage.Enabled {
			continue
		}
		s.budget.DryRun = cfg.Global.Storage.DryRun
		s.budget.Enforce(cfg)
	}
}
