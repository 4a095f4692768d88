package config

import (
	"fmt"
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigError marks a configuration that must be rejected wholesale.
// A reload that produces a ConfigError leaves the running configuration
// untouched.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config holds the full application configuration.
// Tags correspond to the keys in the YAML file. A loaded Config is
// never mutated; reload replaces it wholesale.
type Config struct {
	Global    GlobalConfig             `koanf:"global"`
	Log       LogConfig                `koanf:"log"`
	HTTP      HTTPServerConfig         `koanf:"http_server"`
	Admin     AdminServerConfig        `koanf:"admin_server"`
	Timelapse TimelapseConfig          `koanf:"timelapse"`
	MQTT      MQTTConfig               `koanf:"mqtt"`
	History   HistoryConfig            `koanf:"history"`
	Cameras   map[string]*CameraConfig `koanf:"cameras"`
}

// GlobalConfig holds deployment-wide settings.
type GlobalConfig struct {
	Title                  string        `koanf:"title"`
	WorkDir                string        `koanf:"work_dir"`
	Timezone               string        `koanf:"timezone"`
	UserAgent              string        `koanf:"user_agent"`
	SunriseSunsetIntervalS float64       `koanf:"sunrise_sunset_interval_s"`
	LandingPage            string        `koanf:"landing_page"`
	Storage                StorageConfig `koanf:"storage_management"`

	location *time.Location
}

// StorageConfig holds the disk budget enforcement settings.
type StorageConfig struct {
	Enabled          bool    `koanf:"enabled"`
	DryRun           bool    `koanf:"dry_run"`
	CheckIntervalS   int     `koanf:"check_interval_s"`
	WorkDirMaxSizeGB float64 `koanf:"work_dir_max_size_gb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

// HTTPServerConfig configures the public static file server.
type HTTPServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// AdminServerConfig configures the admin/API server.
type AdminServerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// TimelapseConfig groups the two encoder loops.
type TimelapseConfig struct {
	Frequent FrequentTimelapseConfig `koanf:"frequent"`
	Daily    DailyTimelapseConfig    `koanf:"daily"`
	TmpDir   string                  `koanf:"tmp_dir"`
}

// FrequentTimelapseConfig drives the rolling intra-day encodes.
type FrequentTimelapseConfig struct {
	Enabled       bool   `koanf:"enabled"`
	IntervalS     int    `koanf:"interval_s"`
	FFmpegOptions string `koanf:"ffmpeg_options"`
	FileExtension string `koanf:"file_extension"`
	Framerate     int    `koanf:"framerate"`
}

// DailyTimelapseConfig drives the end-of-day finalization encodes.
type DailyTimelapseConfig struct {
	Enabled       bool   `koanf:"enabled"`
	FFmpegOptions string `koanf:"ffmpeg_options"`
	FileExtension string `koanf:"file_extension"`
	Framerate     int    `koanf:"framerate"`
	TwoPass       bool   `koanf:"two_pass"`
}

// MQTTConfig holds settings for the MQTT state publisher.
type MQTTConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Broker          string `koanf:"broker"`
	Port            int    `koanf:"port"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
	ClientID        string `koanf:"client_id"`
	BaseTopic       string `koanf:"base_topic"`
	DiscoveryPrefix string `koanf:"discovery_prefix"`
}

// HistoryConfig holds settings for the capture-event log.
type HistoryConfig struct {
	Enabled       bool   `koanf:"enabled"`
	File          string `koanf:"file"`
	RetentionDays int    `koanf:"retention_days"`
}

// PostprocessStep is one ordered image transformation. Kind selects the
// operation; the remaining fields are kind-specific and validated at
// load time.
type PostprocessStep struct {
	Kind     string `koanf:"type"`
	Area     string `koanf:"area"`     // crop
	Width    int    `koanf:"width"`    // resize
	Height   int    `koanf:"height"`   // resize
	Position string `koanf:"position"` // timestamp
	Format   string `koanf:"format"`   // timestamp
}

// SunriseSunsetConfig enables dense sampling around sun events.
type SunriseSunsetConfig struct {
	Enabled   bool `koanf:"enabled"`
	WindowMin int  `koanf:"window_min"`
}

// CameraConfig describes a single camera. Exactly one capture source
// (URL or LocalCommand) must be set. Name is filled from the map key at
// load time and is the join key into every other structure: renaming a
// camera orphans its on-disk history.
type CameraConfig struct {
	Name string `koanf:"-"`

	URL          string `koanf:"url"`
	LocalCommand string `koanf:"local_command"`
	TimeoutS     int    `koanf:"timeout_s"`
	CacheBust    bool   `koanf:"cache_bust"`

	SkyArea  string `koanf:"sky_area"`
	SSIMArea string `koanf:"ssim_area"`

	SSIMSetpoint         float64 `koanf:"ssim_setpoint"`
	SnapIntervalS        float64 `koanf:"snap_interval_s"`
	IntervalMinS         float64 `koanf:"interval_min_s"`
	IntervalMaxS         float64 `koanf:"interval_max_s"`
	IntervalGrowFactor   float64 `koanf:"interval_grow_factor"`
	IntervalShrinkFactor float64 `koanf:"interval_shrink_factor"`
	BootstrapIntervalS   float64 `koanf:"bootstrap_interval_s"`

	FailureThreshold int `koanf:"failure_threshold"`
	BackoffInitialS  int `koanf:"backoff_initial_s"`
	BackoffMaxS      int `koanf:"backoff_max_s"`

	Postprocessing []PostprocessStep `koanf:"postprocessing"`

	Disabled    bool    `koanf:"disabled"`
	Description string  `koanf:"description"`
	Latitude    float64 `koanf:"latitude"`
	Longitude   float64 `koanf:"longitude"`
	JitterM     float64 `koanf:"jitter_m"`

	SunriseSunset SunriseSunsetConfig `koanf:"sunrise_sunset"`

	WorkDirMaxSizeGB float64 `koanf:"work_dir_max_size_gb"`
	Timezone         string  `koanf:"timezone"`

	location *time.Location
}

// FixedInterval reports whether the camera runs on a fixed schedule
// instead of the adaptive one.
func (c *CameraConfig) FixedInterval() bool { return c.SnapIntervalS > 0 }

// Timeout returns the capture timeout as a duration.
func (c *CameraConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutS) * time.Second
}

// Location returns the camera's timezone, falling back to the global
// one resolved at load time.
func (c *CameraConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// HasCoordinates reports whether the camera has a usable position for
// sun calculations.
func (c *CameraConfig) HasCoordinates() bool {
	return c.Latitude != 0 || c.Longitude != 0
}

// SunWindow returns the sunrise/sunset lookahead half-window.
func (c *CameraConfig) SunWindow() time.Duration {
	return time.Duration(c.SunriseSunset.WindowMin) * time.Minute
}

// PhotoRoot returns the directory under which all per-camera day
// directories live.
func (c *Config) PhotoRoot() string {
	return filepath.Join(c.Global.WorkDir, "photos")
}

// Location returns the deployment timezone resolved at load time.
func (g *GlobalConfig) Location() *time.Location {
	if g.location == nil {
		return time.UTC
	}
	return g.location
}

// ParseRect parses a "x0,y0,x1,y1" rectangle string. The empty string
// yields (nil, nil), meaning full frame.
func ParseRect(s string) (*image.Rectangle, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("rectangle %q: want 4 comma-separated integers", s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("rectangle %q: %v", s, err)
		}
		vals[i] = v
	}
	r := image.Rect(vals[0], vals[1], vals[2], vals[3])
	if r.Empty() {
		return nil, fmt.Errorf("rectangle %q is empty", s)
	}
	return &r, nil
}

// Load reads, decodes and validates the configuration file. Unknown
// keys are an error: a typo must fail loudly instead of being silently
// ignored.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Global.Title == "" {
		c.Global.Title = "lucarne"
	}
	if c.Global.WorkDir == "" {
		c.Global.WorkDir = "data"
	}
	if c.Global.Timezone == "" {
		c.Global.Timezone = "UTC"
	}
	if c.Global.SunriseSunsetIntervalS == 0 {
		c.Global.SunriseSunsetIntervalS = 10
	}
	if c.Global.Storage.CheckIntervalS == 0 {
		c.Global.Storage.CheckIntervalS = 300
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "0.0.0.0:8888"
	}
	if c.Admin.Listen == "" {
		c.Admin.Listen = "0.0.0.0:8889"
	}
	if c.Timelapse.TmpDir == "" {
		c.Timelapse.TmpDir = filepath.Join(c.Global.WorkDir, "tmp")
	}
	if c.Timelapse.Frequent.IntervalS == 0 {
		c.Timelapse.Frequent.IntervalS = 1200
	}
	if c.Timelapse.Frequent.FFmpegOptions == "" {
		c.Timelapse.Frequent.FFmpegOptions = "-c:v libx264 -preset veryfast -crf 28"
	}
	if c.Timelapse.Frequent.FileExtension == "" {
		c.Timelapse.Frequent.FileExtension = "mp4"
	}
	if c.Timelapse.Frequent.Framerate == 0 {
		c.Timelapse.Frequent.Framerate = 30
	}
	if c.Timelapse.Daily.FFmpegOptions == "" {
		c.Timelapse.Daily.FFmpegOptions = "-c:v libvpx-vp9 -b:v 0 -crf 30"
	}
	if c.Timelapse.Daily.FileExtension == "" {
		c.Timelapse.Daily.FileExtension = "webm"
	}
	if c.Timelapse.Daily.Framerate == 0 {
		c.Timelapse.Daily.Framerate = 60
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "lucarne"
	}
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "lucarne"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.History.File == "" {
		c.History.File = filepath.Join(c.Global.WorkDir, "history.db")
	}
	if c.History.RetentionDays == 0 {
		c.History.RetentionDays = 14
	}

	for name, cam := range c.Cameras {
		cam.Name = name
		if cam.TimeoutS == 0 {
			cam.TimeoutS = 60
		}
		if cam.SSIMSetpoint == 0 {
			cam.SSIMSetpoint = 0.9
		}
		if cam.IntervalMinS == 0 {
			cam.IntervalMinS = 10
		}
		if cam.IntervalMaxS == 0 {
			cam.IntervalMaxS = 600
		}
		if cam.IntervalGrowFactor == 0 {
			cam.IntervalGrowFactor = 1.1
		}
		if cam.IntervalShrinkFactor == 0 {
			cam.IntervalShrinkFactor = 0.9
		}
		if cam.BootstrapIntervalS == 0 {
			cam.BootstrapIntervalS = 60
		}
		if cam.FailureThreshold == 0 {
			cam.FailureThreshold = 3
		}
		if cam.BackoffInitialS == 0 {
			cam.BackoffInitialS = 30
		}
		if cam.BackoffMaxS == 0 {
			cam.BackoffMaxS = 900
		}
		if cam.SunriseSunset.WindowMin == 0 {
			cam.SunriseSunset.WindowMin = 30
		}
	}
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Global.Timezone)
	if err != nil {
		return fmt.Errorf("global.timezone: %v", err)
	}
	c.Global.location = loc

	for name, cam := range c.Cameras {
		if name == "" {
			return fmt.Errorf("camera with empty name")
		}
		if strings.ContainsAny(name, "/\\") {
			return fmt.Errorf("camera %q: name must not contain path separators", name)
		}
		sources := 0
		if cam.URL != "" {
			sources++
		}
		if cam.LocalCommand != "" {
			sources++
		}
		if sources != 1 {
			return fmt.Errorf("camera %q: exactly one of url or local_command must be set", name)
		}
		if cam.SSIMSetpoint <= 0 || cam.SSIMSetpoint >= 1 {
			return fmt.Errorf("camera %q: ssim_setpoint must be in (0,1)", name)
		}
		if cam.IntervalMinS <= 0 || cam.IntervalMaxS < cam.IntervalMinS {
			return fmt.Errorf("camera %q: interval bounds must satisfy 0 < min <= max", name)
		}
		if cam.IntervalGrowFactor <= 1 {
			return fmt.Errorf("camera %q: interval_grow_factor must be > 1", name)
		}
		if cam.IntervalShrinkFactor <= 0 || cam.IntervalShrinkFactor >= 1 {
			return fmt.Errorf("camera %q: interval_shrink_factor must be in (0,1)", name)
		}
		if _, err := ParseRect(cam.SkyArea); err != nil {
			return fmt.Errorf("camera %q: sky_area: %v", name, err)
		}
		if _, err := ParseRect(cam.SSIMArea); err != nil {
			return fmt.Errorf("camera %q: ssim_area: %v", name, err)
		}
		for i, step := range cam.Postprocessing {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("camera %q: postprocessing[%d]: %v", name, i, err)
			}
		}
		if cam.SunriseSunset.Enabled && !cam.HasCoordinates() {
			return fmt.Errorf("camera %q: sunrise_sunset requires latitude and longitude", name)
		}
		cam.location = loc
		if cam.Timezone != "" {
			camLoc, err := time.LoadLocation(cam.Timezone)
			if err != nil {
				return fmt.Errorf("camera %q: timezone: %v", name, err)
			}
			cam.location = camLoc
		}
	}
	return nil
}

func validateStep(step PostprocessStep) error {
	switch step.Kind {
	case "crop":
		r, err := ParseRect(step.Area)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("crop requires an area")
		}
	case "resize":
		if step.Width <= 0 && step.Height <= 0 {
			return fmt.Errorf("resize requires width and/or height")
		}
	case "awb", "timestamp":
		// No required parameters.
	default:
		return fmt.Errorf("unknown step type %q", step.Kind)
	}
	return nil
}
