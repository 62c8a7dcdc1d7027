package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/lcqe/pkg/config"
	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/session"
	"github.com/charlie0129/lcqe/pkg/types"
	"github.com/charlie0129/lcqe/pkg/version"
)

// Error kinds that have no errdefs counterpart.
const (
	kindSuperseded = "Superseded"
	kindNotFound   = "NotFound"
	kindCancelled  = "Cancelled"
)

// abortWithError maps err to a status code and a types.ErrorResponse body.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := types.ErrorResponse{Kind: errdefs.Kind(err), Message: err.Error()}

	var ce *corrector.ConvergenceError
	switch {
	case errors.Is(err, session.ErrSuperseded):
		status, resp.Kind = http.StatusConflict, kindSuperseded
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrNoResult):
		status, resp.Kind = http.StatusNotFound, kindNotFound
	case errors.As(err, &ce):
		status = http.StatusUnprocessableEntity
		if ce.Partial != nil {
			doc := ce.Partial.Document()
			resp.Partial = &doc
		}
	case errors.Is(err, errdefs.ErrValidation),
		errors.Is(err, errdefs.ErrGridMismatch),
		errors.Is(err, errdefs.ErrInvalidCoupling):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, resp.Kind = http.StatusServiceUnavailable, kindCancelled
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func bindError(c *gin.Context, err error) {
	abortWithError(c, errdefs.NewValidationError("body", "%v", err))
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) saveConfig(c *gin.Context) bool {
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, err)
		return false
	}
	return true
}

func (d *Daemon) setTolerance(c *gin.Context) {
	var v float64
	if err := c.BindJSON(&v); err != nil {
		bindError(c, err)
		return
	}

	if err := d.conf.SetTolerance(v); err != nil {
		abortWithError(c, err)
		return
	}
	if !d.saveConfig(c) {
		return
	}

	logrus.Infof("set tolerance to %g mA/cm2", v)
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (d *Daemon) setMaxIterations(c *gin.Context) {
	var v int
	if err := c.BindJSON(&v); err != nil {
		bindError(c, err)
		return
	}

	if err := d.conf.SetMaxIterations(v); err != nil {
		abortWithError(c, err)
		return
	}
	if !d.saveConfig(c) {
		return
	}

	logrus.Infof("set max iterations to %d", v)
	c.IndentedJSON(http.StatusCreated, "ok")
}

// setSpectrumKind switches the configured spectrum. The new spectrum is
// loaded before anything is saved, so a bad file leaves the config as is.
func (d *Daemon) setSpectrumKind(c *gin.Context) {
	var u types.SpectrumKindUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		bindError(c, err)
		return
	}

	file := u.File
	if file == "" {
		file = d.conf.SpectrumFile()
	}
	if file != "" {
		if _, err := d.loadSpectrum(file, u.Kind); err != nil {
			abortWithError(c, errdefs.NewValidationError("spectrum", "%v", err))
			return
		}
	}

	d.conf.SetSpectrumKind(u.Kind)
	if u.File != "" {
		d.conf.SetSpectrumFile(u.File)
	}
	if !d.saveConfig(c) {
		return
	}
	d.dropSpectrum()

	logrus.WithFields(logrus.Fields{
		"kind": u.Kind.String(),
		"file": file,
	}).Info("set spectrum")
	c.IndentedJSON(http.StatusCreated, "ok")
}

func (d *Daemon) correct(c *gin.Context) {
	var req types.CorrectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	requestID := session.NewID()
	r, err := d.run(c.Request.Context(), &req, requestID, "")
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.CorrectResponse{RequestID: requestID, Result: r.Document()})
}

func (d *Daemon) correctSession(c *gin.Context) {
	var req types.CorrectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	id := c.Param("id")
	requestID := session.NewID()
	r, err := d.submit(c.Request.Context(), &req, requestID, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.CorrectResponse{RequestID: requestID, SessionID: id, Result: r.Document()})
}

func (d *Daemon) listSessions(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.sessions.List())
}

func (d *Daemon) getSessionResult(c *gin.Context) {
	id := c.Param("id")
	r, _, err := d.sessions.Latest(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, types.CorrectResponse{SessionID: id, Result: r.Document()})
}

func (d *Daemon) deleteSession(c *gin.Context) {
	if err := d.sessions.Delete(c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	d.metrics.Sessions.Set(float64(d.sessions.Len()))
	c.IndentedJSON(http.StatusOK, "ok")
}

// streamEvents relays hub events as server-sent events until the client
// goes away or the daemon shuts down.
func (d *Daemon) streamEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
