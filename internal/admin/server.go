package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"lucarne/internal/config"
	"lucarne/internal/history"
	"lucarne/internal/registry"
	"lucarne/internal/sse"
	"lucarne/internal/sysinfo"
)

// ErrUnknownCamera is returned by controllers for names not currently
// scheduled.
var ErrUnknownCamera = errors.New("unknown camera")

// CameraController exposes per-camera actions implemented by the
// orchestrator.
type CameraController interface {
	// TriggerCapture forces an immediate persisted capture.
	TriggerCapture(ctx context.Context, camera string) error
	// CapturePreview grabs a postprocessed frame without persisting it.
	CapturePreview(ctx context.Context, camera string) ([]byte, error)
}

// Reloader re-reads the configuration from disk.
type Reloader interface {
	Reload() error
}

// Server is the admin API: camera state, manual captures, history,
// metrics, system stats and live events.
type Server struct {
	srv *http.Server
}

// Deps collects everything the handlers touch.
type Deps struct {
	Store      *config.Store
	Registry   *registry.Registry
	Hub        *sse.Hub
	History    *history.Service
	Controller CameraController
	Reloader   Reloader
}

// NewServer builds the admin server, or nil when disabled.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if !cfg.Admin.Enabled {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	api := router.Group("/api")
	{
		api.GET("/cameras", deps.listCameras)
		api.GET("/cameras/:name", deps.getCamera)
		api.POST("/cameras/:name/capture", deps.triggerCapture)
		api.GET("/cameras/:name/preview", deps.preview)
		api.POST("/cameras/:name/preview_crop", deps.previewCrop)
		api.GET("/history/:name", deps.getHistory)
		api.GET("/config", deps.getConfig)
		api.POST("/config/reload", deps.reload)
		api.GET("/system", deps.systemStats)
		api.GET("/events", deps.events)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Admin.Listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		log.Infof("Admin server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Admin server failed: %v", err)
		}
	}()
}

// Stop gracefully drains connections.
func (s *Server) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		log.Warnf("Admin server shutdown: %v", err)
	}
}

func (d Deps) listCameras(c *gin.Context) {
	c.JSON(http.StatusOK, d.Registry.SnapshotAll())
}

func (d Deps) getCamera(c *gin.Context) {
	st, ok := d.Registry.Snapshot(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown camera"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (d Deps) triggerCapture(c *gin.Context) {
	name := c.Param("name")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	if err := d.Controller.TriggerCapture(ctx, name); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrUnknownCamera) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	st, _ := d.Registry.Snapshot(name)
	c.JSON(http.StatusOK, st)
}

func (d Deps) preview(c *gin.Context) {
	data, err := d.fetchPreview(c)
	if err != nil {
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// previewCrop captures a frame and returns only the requested
// rectangle, for interactively tuning sky_area and ssim_area.
func (d Deps) previewCrop(c *gin.Context) {
	var req struct {
		Area string `json:"area" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rect, err := config.ParseRect(req.Area)
	if err != nil || rect == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid area: %v", err)})
		return
	}

	data, err := d.fetchPreview(c)
	if err != nil {
		return
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "capture did not decode"})
		return
	}
	r := rect.Intersect(img.Bounds())
	if r.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "area outside frame"})
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Crop(img, r), imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

// fetchPreview runs the preview capture and writes the error response
// itself; a nil slice with nil error never happens.
func (d Deps) fetchPreview(c *gin.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	data, err := d.Controller.CapturePreview(ctx, c.Param("name"))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrUnknownCamera) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, err
	}
	return data, nil
}

func (d Deps) getHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	events, err := d.History.Recent(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []history.CaptureEvent{}
	}
	c.JSON(http.StatusOK, events)
}

// getConfig returns the active configuration with credentials blanked.
func (d Deps) getConfig(c *gin.Context) {
	cfg := *d.Store.Current()
	cfg.MQTT.Password = ""
	c.JSON(http.StatusOK, cfg)
}

func (d Deps) reload(c *gin.Context) {
	if err := d.Reloader.Reload(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

func (d Deps) systemStats(c *gin.Context) {
	c.JSON(http.StatusOK, sysinfo.Collect(d.Store.Current().Global.WorkDir))
}

// events streams registry updates over SSE until the client leaves.
func (d Deps) events(c *gin.Context) {
	client := make(sse.Client, 16)
	d.Hub.Register(client)
	defer d.Hub.Unregister(client)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("message", string(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
