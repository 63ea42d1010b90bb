// Package gateway serves proxied requests from the active deployment of each
// topology.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	deployService "github.com/allisson/topogate/internal/deploy/service"
	"github.com/allisson/topogate/internal/errors"
	apphttputil "github.com/allisson/topogate/internal/httputil"
)

// VersionLookup resolves the active version of a topology.
type VersionLookup interface {
	LookupActiveVersion(name string) (*deployDomain.Version, bool)
}

type route struct {
	path   string
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// loadRetryInterval is how long a failed version load is served from cache
// before the artifacts are read again.
const loadRetryInterval = 5 * time.Second

// loadedVersion is the routing table of one version, longest path first.
type loadedVersion struct {
	id     string
	token  string
	routes []route
}

type failedLoad struct {
	id  string
	err error
	at  time.Time
}

// match returns the route whose path is the longest prefix of p on a segment boundary.
func (v *loadedVersion) match(p string) (route, string, bool) {
	for _, r := range v.routes {
		if r.path == "/" {
			return r, p, true
		}
		if p == r.path || strings.HasPrefix(p, r.path+"/") {
			return r, strings.TrimPrefix(p, r.path), true
		}
	}
	return route{}, "", false
}

// Handler proxies /<prefix>/<topology>/<route path>... to the route's backend.
// Versions are loaded once per version id; concurrent first requests share a
// single load and loads for different topologies run independently.
type Handler struct {
	lookup     VersionLookup
	verifier   deployService.Verifier
	logger     *slog.Logger
	retryAfter time.Duration

	loads   singleflight.Group
	mu      sync.RWMutex
	current map[string]*loadedVersion
	failed  map[string]*failedLoad
}

// NewHandler creates a Handler.
func NewHandler(lookup VersionLookup, verifier deployService.Verifier, logger *slog.Logger) *Handler {
	return &Handler{
		lookup:     lookup,
		verifier:   verifier,
		logger:     logger,
		retryAfter: loadRetryInterval,
		current:    make(map[string]*loadedVersion),
		failed:     make(map[string]*failedLoad),
	}
}

// ProxyHandler serves a gateway request. It expects the "topology" and "path"
// route parameters.
func (h *Handler) ProxyHandler(c *gin.Context) {
	topology := c.Param("topology")
	requestPath := c.Param("path")
	if requestPath == "" {
		requestPath = "/"
	}

	version, ok := h.lookup.LookupActiveVersion(topology)
	if !ok {
		h.evict(topology)
		apphttputil.HandleErrorGin(c, errors.Wrapf(errors.ErrNotFound, "topology %s", topology), nil)
		return
	}

	loaded, err := h.load(c.Request.Context(), topology, version)
	if err != nil {
		apphttputil.HandleErrorGin(c, errors.Wrapf(errors.ErrUnavailable, "%s: %v", version.ID(), err), h.logger)
		return
	}

	r, rest, ok := loaded.match(requestPath)
	if !ok {
		apphttputil.HandleErrorGin(c, errors.Wrapf(errors.ErrNotFound, "route %s", requestPath), nil)
		return
	}
	if rest == "" {
		rest = "/"
	}

	out := c.Request.Clone(c.Request.Context())
	out.URL.Path = rest
	out.URL.RawPath = ""
	r.proxy.ServeHTTP(c.Writer, out)
}

// load returns the routing table of version, reading and verifying its artifacts
// the first time the version is seen. A failed load is remembered for retryAfter.
func (h *Handler) load(ctx context.Context, topology string, version *deployDomain.Version) (*loadedVersion, error) {
	id := version.ID()

	h.mu.RLock()
	loaded := h.current[topology]
	failed := h.failed[topology]
	h.mu.RUnlock()

	if loaded != nil && loaded.id == id {
		return loaded, nil
	}
	if failed != nil && failed.id == id && time.Since(failed.at) < h.retryAfter {
		return nil, failed.err
	}

	// The load outlives the request that started it; other requests share its result.
	result, err, _ := h.loads.Do(id, func() (any, error) {
		h.mu.RLock()
		cur := h.current[topology]
		h.mu.RUnlock()
		if cur != nil && cur.id == id {
			return cur, nil
		}

		loaded, err := h.read(context.WithoutCancel(ctx), version)

		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			h.failed[topology] = &failedLoad{id: id, err: err, at: time.Now()}
			return nil, err
		}
		if f := h.failed[topology]; f != nil && f.id == id {
			delete(h.failed, topology)
		}
		// A slower load of an older version must not replace a newer one.
		if cur := h.current[topology]; cur == nil || cur.token < loaded.token {
			h.current[topology] = loaded
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*loadedVersion), nil
}

// read builds the routing table of version from its verified artifacts.
func (h *Handler) read(ctx context.Context, version *deployDomain.Version) (*loadedVersion, error) {
	artifacts, err := deployService.LoadVersion(ctx, h.verifier, version)
	if err != nil {
		return nil, err
	}

	loaded := &loadedVersion{id: version.ID(), token: version.Token}
	for _, r := range artifacts.Routes {
		target, err := url.Parse(r.URL)
		if err != nil {
			return nil, errors.Wrapf(deployDomain.ErrInvalidManifest, "route %s: %v", r.Path, err)
		}
		loaded.routes = append(loaded.routes, route{
			path:   r.Path,
			target: target,
			proxy:  h.newProxy(target),
		})
	}
	sort.SliceStable(loaded.routes, func(i, j int) bool {
		return len(loaded.routes[i].path) > len(loaded.routes[j].path)
	})

	h.logger.Info("gateway loaded deployment",
		slog.String("topology", version.Topology),
		slog.String("version", version.ID()),
		slog.Int("routes", len(loaded.routes)),
	)
	return loaded, nil
}

// evict drops cached state of a topology that is no longer active.
func (h *Handler) evict(topology string) {
	h.mu.RLock()
	_, loaded := h.current[topology]
	_, failed := h.failed[topology]
	h.mu.RUnlock()
	if !loaded && !failed {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.current, topology)
	delete(h.failed, topology)
}

func (h *Handler) newProxy(target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.logger.Warn("gateway backend request failed",
				slog.String("target", target.String()),
				slog.Any("error", err),
			)
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}
