package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/lcqe/pkg/config"
	"github.com/charlie0129/lcqe/pkg/coupling"
	"github.com/charlie0129/lcqe/pkg/eqe"
	"github.com/charlie0129/lcqe/pkg/events"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/session"
	"github.com/charlie0129/lcqe/pkg/types"
)

// Request builds a correction request. m and spectrum may be nil, in which
// case the daemon assumes no coupling and uses its configured spectrum.
func Request(set *eqe.Set, m *coupling.Matrix, spectrum *flux.Spectrum) *types.CorrectRequest {
	req := &types.CorrectRequest{
		Wavelength: set.Grid().Values(),
		Names:      set.Names(),
		EQE:        set.Values(),
		Spectrum:   spectrum,
	}
	if m != nil {
		req.Coupling = m.Rows()
	}
	return req
}

func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var v string
	if err := c.Get(ctx, "/version", &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	return v, nil
}

func (c *Client) GetConfig(ctx context.Context) (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.Get(ctx, "/config", &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return &conf, nil
}

func (c *Client) SetTolerance(ctx context.Context, v float64) error {
	return c.Put(ctx, "/tolerance", v)
}

func (c *Client) SetMaxIterations(ctx context.Context, v int) error {
	return c.Put(ctx, "/max-iterations", v)
}

// SetSpectrumKind switches the daemon's spectrum. An empty file keeps the
// configured one.
func (c *Client) SetSpectrumKind(ctx context.Context, kind flux.Kind, file string) error {
	return c.Put(ctx, "/spectrum-kind", types.SpectrumKindUpdate{Kind: kind, File: file})
}

// Correct runs a one-shot correction. When the daemon reports a
// ConvergenceError, the returned error is an *APIError carrying Partial.
func (c *Client) Correct(ctx context.Context, req *types.CorrectRequest) (*result.Set, string, error) {
	return c.correct(ctx, "/correct", req)
}

// CorrectSession runs req as the latest request of session id. It fails with
// ErrSuperseded when a newer request for id arrives before it finishes.
func (c *Client) CorrectSession(ctx context.Context, id string, req *types.CorrectRequest) (*result.Set, string, error) {
	return c.correct(ctx, "/sessions/"+url.PathEscape(id)+"/correct", req)
}

func (c *Client) correct(ctx context.Context, path string, req *types.CorrectRequest) (*result.Set, string, error) {
	var resp types.CorrectResponse
	if err := c.Post(ctx, path, req, &resp); err != nil {
		return nil, "", err
	}
	r, err := result.FromDocument(resp.Result)
	if err != nil {
		return nil, resp.RequestID, pkgerrors.Wrapf(err, "failed to decode result")
	}
	return r, resp.RequestID, nil
}

func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	var list []session.Info
	if err := c.Get(ctx, "/sessions", &list); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list sessions")
	}
	return list, nil
}

// SessionResult returns the latest successful result of session id.
func (c *Client) SessionResult(ctx context.Context, id string) (*result.Set, error) {
	var resp types.CorrectResponse
	if err := c.Get(ctx, "/sessions/"+url.PathEscape(id)+"/result", &resp); err != nil {
		return nil, err
	}
	return result.FromDocument(resp.Result)
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.Delete(ctx, "/sessions/"+url.PathEscape(id))
}

// Events streams daemon events until ctx is done or the daemon closes the
// stream. The returned channel is closed when streaming stops.
func (c *Client) Events(ctx context.Context) (<-chan events.Event, error) {
	resp, err := c.do(ctx, http.MethodGet, "/events", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}

	ch := make(chan events.Event)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1<<20)
		var ev events.Event
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Name == "" && ev.Data == nil {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
				ev = events.Event{}
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				ev.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
	}()
	return ch, nil
}
