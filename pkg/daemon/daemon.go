package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/lcqe/pkg/config"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/events"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/metrics"
	"github.com/charlie0129/lcqe/pkg/session"
	"github.com/charlie0129/lcqe/pkg/tabular"
)

// Daemon serves corrections over HTTP.
type Daemon struct {
	conf     config.Config
	sessions *session.Manager
	hub      *events.EventHub
	metrics  *metrics.Metrics
	pruner   *Scheduler

	// spectrum caches the configured spectrum, keyed by kind and file.
	spectrumMu   sync.Mutex
	spectrum     *flux.Spectrum
	spectrumKey  spectrumKey
	loadSpectrum func(path string, kind flux.Kind) (*flux.Spectrum, error)
}

type spectrumKey struct {
	kind flux.Kind
	file string
}

func New(conf config.Config) *Daemon {
	d := &Daemon{
		conf:         conf,
		sessions:     session.NewManager(),
		hub:          events.NewEventHub(),
		metrics:      metrics.New(),
		loadSpectrum: tabular.ReadSpectrum,
	}
	d.hub.OnDrop = d.metrics.DroppedEvents.Inc
	d.sessions.OnSuperseded = func(sessionID, requestID string) {
		d.hub.Publish(events.SessionSuperseded, events.SessionSupersededEvent{
			RequestID: requestID,
			SessionID: sessionID,
			Ts:        time.Now().Unix(),
		})
	}
	d.pruner = NewScheduler(d.pruneSessions, func(data any) {
		logrus.WithField("error", data).Error("session pruning failed")
	})
	return d
}

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", d.getConfig)
	router.PUT("/tolerance", d.setTolerance)
	router.PUT("/max-iterations", d.setMaxIterations)
	router.PUT("/spectrum-kind", d.setSpectrumKind)
	router.POST("/correct", d.correct)
	router.GET("/sessions", d.listSessions)
	router.POST("/sessions/:id/correct", d.correctSession)
	router.GET("/sessions/:id/result", d.getSessionResult)
	router.DELETE("/sessions/:id", d.deleteSession)
	router.GET("/events", d.streamEvents)
	router.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	return router
}

// configuredSpectrum returns the spectrum named by the config, loading it on
// first use and whenever kind or file change.
func (d *Daemon) configuredSpectrum() (*flux.Spectrum, error) {
	key := spectrumKey{kind: d.conf.SpectrumKind(), file: d.conf.SpectrumFile()}
	if key.file == "" {
		return nil, errdefs.NewValidationError("spectrum", "no spectrum in the request and no spectrumFile configured")
	}

	d.spectrumMu.Lock()
	defer d.spectrumMu.Unlock()

	if d.spectrum != nil && d.spectrumKey == key {
		return d.spectrum, nil
	}
	s, err := d.loadSpectrum(key.file, key.kind)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"kind":   key.kind.String(),
		"file":   key.file,
		"points": s.Grid().Len(),
	}).Info("spectrum loaded")
	d.spectrum, d.spectrumKey = s, key
	return s, nil
}

func (d *Daemon) dropSpectrum() {
	d.spectrumMu.Lock()
	d.spectrum = nil
	d.spectrumMu.Unlock()
}

func (d *Daemon) pruneSessions() error {
	idle := d.conf.SessionIdleTimeout()
	n := d.sessions.Prune(idle)
	d.metrics.Sessions.Set(float64(d.sessions.Len()))
	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"pruned": n,
			"idle":   idle.String(),
		}).Info("pruned idle sessions")
	}
	return nil
}

// reload re-reads the config file and applies what changed.
func (d *Daemon) reload() error {
	if err := d.conf.Load(); err != nil {
		return err
	}
	d.dropSpectrum()
	return d.pruner.Schedule(d.conf.PruneSchedule())
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	conf, err := config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	d := New(conf)
	router := d.setupRoutes()

	if err := d.pruner.Schedule(conf.PruneSchedule()); err != nil {
		return err
	}
	d.pruner.Start()
	defer d.pruner.Stop()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := d.reload()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	// Event streams and in-flight corrections end when this is cancelled.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	// A socket left behind by a crashed daemon blocks Listen.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", unixSocketPath)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErr:
		return pkgerrors.Wrap(err, "http server failed")
	}

	logrus.Info("shutting down http server")
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
