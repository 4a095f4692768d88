package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-camera capture pipeline metrics. All vectors are keyed by camera
// name only; cardinality stays bounded by the configuration.
var (
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_captures_total",
		Help: "Successful captures per camera.",
	}, []string{"camera"})

	CaptureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_capture_failures_total",
		Help: "Failed capture attempts per camera.",
	}, []string{"camera"})

	CaptureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lucarne_capture_duration_seconds",
		Help:    "Wall time of one capture attempt.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"camera"})

	SSIMScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucarne_ssim_score",
		Help: "Most recent SSIM score against the previous frame.",
	}, []string{"camera"})

	CaptureInterval = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucarne_capture_interval_seconds",
		Help: "Current adaptive capture interval.",
	}, []string{"camera"})

	ConsecutiveFailures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucarne_consecutive_failures",
		Help: "Consecutive capture failures per camera.",
	}, []string{"camera"})

	CameraMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucarne_camera_mode",
		Help: "Current exposure mode per camera (0=day, 1=night, 2=astro).",
	}, []string{"camera"})

	TimelapseEncodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_timelapse_encodes_total",
		Help: "Completed timelapse encodes per camera and kind.",
	}, []string{"camera", "kind"})

	TimelapseEncodeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_timelapse_encode_failures_total",
		Help: "Failed timelapse encodes per camera and kind.",
	}, []string{"camera", "kind"})

	TimelapseEncodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lucarne_timelapse_encode_duration_seconds",
		Help:    "Wall time of one timelapse encode.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"camera", "kind"})

	ArchivedDaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_archived_days_total",
		Help: "Day directories archived and pruned per camera.",
	}, []string{"camera"})

	PrunedImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_pruned_images_total",
		Help: "Images removed by archive pruning per camera.",
	}, []string{"camera"})

	DiskUsageBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lucarne_disk_usage_bytes",
		Help: "Bytes used under the photo directory per camera.",
	}, []string{"camera"})

	DiskBudgetDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_disk_budget_deletes_total",
		Help: "Day directories deleted by budget enforcement per camera.",
	}, []string{"camera"})

	DiskBudgetUnsatisfiable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lucarne_disk_budget_unsatisfiable",
		Help: "1 when the disk budget cannot be met without deleting today's data.",
	})

	ConfigReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lucarne_config_reloads_total",
		Help: "Configuration reload attempts by outcome.",
	}, []string{"outcome"})
)
