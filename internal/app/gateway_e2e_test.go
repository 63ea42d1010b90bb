package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	topologyDTO "github.com/allisson/topogate/internal/topology/http/dto"
)

const clusterDescriptor = `<topology>
  <gateway>
    <provider>
      <role>authentication</role>
      <name>ShiroProvider</name>
      <enabled>true</enabled>
      <param><name>main.ldapRealm.contextFactory.systemPassword</name><value>${ALIAS=ldap-password}</value></param>
    </provider>
  </gateway>
  <service>
    <role>test-service-role</role>
    <url>%s</url>
    <param><name>path</name><value>test-service-path</value></param>
  </service>
</topology>`

type gatewayHarness struct {
	admin   http.Handler
	gateway http.Handler
	dir     string
	deploys string
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := newTestConfig(t)
	container := NewContainer(cfg)

	registry, err := container.Registry()
	require.NoError(t, err)
	require.NoError(t, registry.Init(ctx, cfg.RegistryOptions()))
	require.NoError(t, registry.Start(ctx))
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, container.Shutdown(context.Background()))
	})

	adminServer, err := container.AdminServer(ctx)
	require.NoError(t, err)
	gatewayServer, err := container.GatewayServer()
	require.NoError(t, err)

	return &gatewayHarness{
		admin:   adminServer.GetHandler(),
		gateway: gatewayServer.GetHandler(),
		dir:     cfg.TopologyDir,
		deploys: cfg.DeploymentDir,
	}
}

func (h *gatewayHarness) do(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func (h *gatewayHarness) writeDescriptor(t *testing.T, backendURL string) {
	t.Helper()
	path := filepath.Join(h.dir, "test-cluster.xml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(clusterDescriptor, backendURL)), 0o600))
}

func (h *gatewayHarness) versions(t *testing.T) []topologyDTO.VersionResponse {
	t.Helper()
	w := h.do(h.admin, http.MethodGet, "/v1/topologies/test-cluster/versions", "")
	if w.Code != http.StatusOK {
		return nil
	}
	var resp topologyDTO.ListVersionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

// artifactDirs counts the on-disk version directories of test-cluster.
func (h *gatewayHarness) artifactDirs(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.deploys, "test-cluster.*"))
	require.NoError(t, err)
	return len(matches)
}

func (h *gatewayHarness) proxied(body string) func() bool {
	return func() bool {
		w := h.do(h.gateway, http.MethodGet, "/gateway/test-cluster/test-service-path/test-service-resource", "")
		return w.Code == http.StatusOK && w.Body.String() == body
	}
}

func newTestBackend(t *testing.T, body string) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(backend.Close)
	return backend
}

func TestGateway_DeployRedeployAndRemove(t *testing.T) {
	h := newGatewayHarness(t)
	first := newTestBackend(t, "first-backend")
	second := newTestBackend(t, "second-backend")

	w := h.do(h.admin, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(h.admin, http.MethodPut, "/v1/aliases/ldap-password", `{"value":"first-secret"}`)
	require.Equal(t, http.StatusOK, w.Code)

	// A new descriptor is deployed and served.
	h.writeDescriptor(t, first.URL)
	require.Eventually(t, h.proxied("first-backend"), 5*time.Second, 20*time.Millisecond)
	require.Len(t, h.versions(t), 1)

	w = h.do(h.admin, http.MethodGet, "/v1/topologies/test-cluster", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), first.URL)
	assert.NotContains(t, w.Body.String(), "first-secret")

	// Editing the descriptor switches the active version.
	h.writeDescriptor(t, second.URL)
	require.Eventually(t, h.proxied("second-backend"), 5*time.Second, 20*time.Millisecond)
	require.Len(t, h.versions(t), 2)

	// An alias change takes effect on an explicit redeploy.
	w = h.do(h.admin, http.MethodPut, "/v1/aliases/ldap-password", `{"value":"second-secret"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(h.admin, http.MethodPost, "/v1/topologies/test-cluster/redeploy", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(h.versions(t)) == 3 }, 5*time.Second, 20*time.Millisecond)

	active := 0
	for _, v := range h.versions(t) {
		if v.Active {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.True(t, h.proxied("second-backend")())

	// Redeploying all topologies adds one more version.
	w = h.do(h.admin, http.MethodPost, "/v1/topologies/redeploy", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(h.versions(t)) == 4 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 4, h.artifactDirs(t))
	assert.True(t, h.proxied("second-backend")())

	// Removing the descriptor undeploys the topology.
	require.NoError(t, os.Remove(filepath.Join(h.dir, "test-cluster.xml")))
	require.Eventually(t, func() bool {
		w := h.do(h.gateway, http.MethodGet, "/gateway/test-cluster/test-service-path/x", "")
		return w.Code == http.StatusNotFound
	}, 5*time.Second, 20*time.Millisecond)

	w = h.do(h.admin, http.MethodGet, "/v1/topologies/test-cluster", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Eventually(t, func() bool { return h.artifactDirs(t) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestGateway_UnknownTopology(t *testing.T) {
	h := newGatewayHarness(t)

	w := h.do(h.gateway, http.MethodGet, "/gateway/missing/test-service-path/x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(h.admin, http.MethodPost, "/v1/topologies/missing/redeploy", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(h.admin, http.MethodGet, "/v1/topologies", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
