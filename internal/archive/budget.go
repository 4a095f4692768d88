package archive

import (
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
	"lucarne/internal/daydir"
	"lucarne/internal/metrics"
	"lucarne/internal/registry"
	"lucarne/internal/sysinfo"
)

// BudgetEnforcer keeps per-camera and global disk usage under their
// configured ceilings by deleting whole day directories, oldest first.
type BudgetEnforcer struct {
	Layout   daydir.Layout
	Locks    *daydir.LockTable
	Registry *registry.Registry
	DailyExt string
	DryRun   bool
	Now      func() time.Time
}

// Enforce runs one pass: per-camera ceilings first, then the global
// one. Returns true when every ceiling is satisfied. Today's directory
// is never deleted, so a single day larger than the budget leaves the
// ceiling breached; that condition is flagged, not fixed.
func (b *BudgetEnforcer) Enforce(cfg *config.Config) bool {
	satisfied := true

	for name, cam := range cfg.Cameras {
		if cam.WorkDirMaxSizeGB <= 0 {
			continue
		}
		limit := int64(cam.WorkDirMaxSizeGB * float64(1<<30))
		if !b.enforceCamera(name, cam.Location(), limit) {
			satisfied = false
		}
	}

	if gb := cfg.Global.Storage.WorkDirMaxSizeGB; gb > 0 {
		limit := int64(gb * float64(1<<30))
		if !b.enforceGlobal(cfg, limit) {
			satisfied = false
		}
	}

	if satisfied {
		metrics.DiskBudgetUnsatisfiable.Set(0)
	} else {
		metrics.DiskBudgetUnsatisfiable.Set(1)
		log.Warn("Disk budget unsatisfiable without deleting today's data")
	}
	return satisfied
}

func (b *BudgetEnforcer) enforceCamera(camera string, loc *time.Location, limit int64) bool {
	size, err := daydir.DirSize(b.Layout.CameraDir(camera))
	if err != nil {
		log.Warnf("Camera %s: sizing failed: %v", camera, err)
		return true
	}
	metrics.DiskUsageBytes.WithLabelValues(camera).Set(float64(size))
	if size <= limit {
		b.setBudgetState(camera, false)
		return true
	}

	log.Infof("Camera %s: %s over the %s budget, deleting oldest days",
		camera, sysinfo.FormatBytes(uint64(size-limit)), sysinfo.FormatBytes(uint64(limit)))
	freed := b.deleteOldest(camera, loc, size-limit)
	ok := size-freed <= limit
	b.setBudgetState(camera, !ok)
	return ok
}

// enforceGlobal distributes global pressure by repeatedly deleting the
// single oldest deletable day across all cameras. Deleted (or, in dry
// run, would-be deleted) sizes are tracked locally so the loop always
// terminates.
func (b *BudgetEnforcer) enforceGlobal(cfg *config.Config, limit int64) bool {
	size, err := daydir.DirSize(b.Layout.Root)
	if err != nil {
		log.Warnf("Global sizing failed: %v", err)
		return true
	}

	deleted := make(map[string]bool)
	for size > limit {
		camera, day, ok := b.oldestDeletableDay(cfg, deleted)
		if !ok {
			return false
		}
		dayDir := filepath.Join(b.Layout.CameraDir(camera), day)
		daySize, err := daydir.DirSize(dayDir)
		if err != nil {
			daySize = 0
		}
		if !b.deleteDay(camera, day) {
			return false
		}
		deleted[dayDir] = true
		size -= daySize
	}
	return true
}

// oldestDeletableDay scans all cameras for the best deletion victim:
// the oldest non-today day, preferring days that already have their
// daily timelapse so unencoded history survives longest.
func (b *BudgetEnforcer) oldestDeletableDay(cfg *config.Config, skip map[string]bool) (string, string, bool) {
	var bestCam, bestDay string
	bestEncoded := false

	for name, cam := range cfg.Cameras {
		today := b.now().In(cam.Location()).Format(daydir.DayFormat)
		days, err := b.Layout.ListDayDirs(name)
		if err != nil {
			continue
		}
		for _, day := range days {
			if day >= today || skip[filepath.Join(b.Layout.CameraDir(name), day)] {
				continue
			}
			encoded := daydir.HasDailyTimelapse(filepath.Join(b.Layout.CameraDir(name), day), b.DailyExt)
			better := false
			switch {
			case bestDay == "":
				better = true
			case encoded && !bestEncoded:
				better = true
			case encoded == bestEncoded && day < bestDay:
				better = true
			}
			if better {
				bestCam, bestDay, bestEncoded = name, day, encoded
			}
			// Only the oldest day of each camera matters per pass.
			break
		}
	}
	return bestCam, bestDay, bestDay != ""
}

// deleteOldest removes day directories of one camera, oldest first,
// until wantFreed bytes are gone or nothing deletable remains. Encoded
// days go before unencoded ones of the same age class only when both
// exist; within the scan we prefer encoded victims. Today is the
// camera's local day, not the process's.
func (b *BudgetEnforcer) deleteOldest(camera string, loc *time.Location, wantFreed int64) int64 {
	today := b.now().In(loc).Format(daydir.DayFormat)
	days, err := b.Layout.ListDayDirs(camera)
	if err != nil {
		return 0
	}

	// Two passes: encoded days first, then the rest.
	var freed int64
	for _, encodedPass := range []bool{true, false} {
		for _, day := range days {
			if freed >= wantFreed {
				return freed
			}
			if day >= today {
				continue
			}
			dayDir := filepath.Join(b.Layout.CameraDir(camera), day)
			if daydir.HasDailyTimelapse(dayDir, b.DailyExt) != encodedPass {
				continue
			}
			size, err := daydir.DirSize(dayDir)
			if err != nil {
				continue
			}
			if b.deleteDay(camera, day) {
				freed += size
			}
		}
	}
	return freed
}

// deleteDay removes one whole day directory under its lock.
func (b *BudgetEnforcer) deleteDay(camera, day string) bool {
	dayDir := filepath.Join(b.Layout.CameraDir(camera), day)
	if b.DryRun {
		log.Infof("Camera %s: dry run, would delete %s", camera, dayDir)
		return true
	}

	lock := b.Locks.Lock(camera, day)
	lock.Lock()
	err := os.RemoveAll(dayDir)
	lock.Unlock()

	if err != nil {
		log.Errorf("Camera %s: deleting %s failed: %v", camera, dayDir, err)
		return false
	}
	metrics.DiskBudgetDeletesTotal.WithLabelValues(camera).Inc()
	log.Warnf("Camera %s: deleted day %s to satisfy disk budget", camera, day)
	return true
}

func (b *BudgetEnforcer) setBudgetState(camera string, exceeded bool) {
	if b.Registry == nil {
		return
	}
	b.Registry.Update(camera, func(st *registry.State) {
		st.BudgetExceeded = exceeded
	})
}

func (b *BudgetEnforcer) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
