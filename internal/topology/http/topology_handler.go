// Package http provides HTTP handlers for topology inspection and redeployment.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	deployDomain "github.com/allisson/topogate/internal/deploy/domain"
	"github.com/allisson/topogate/internal/errors"
	"github.com/allisson/topogate/internal/httputil"
	topologyDomain "github.com/allisson/topogate/internal/topology/domain"
	"github.com/allisson/topogate/internal/topology/http/dto"
	customValidation "github.com/allisson/topogate/internal/validation"
)

// TopologyReader is the part of the TopologyService the handler uses.
type TopologyReader interface {
	Topologies() []*topologyDomain.Topology
	Topology(name string) (*topologyDomain.Topology, error)
	Redeploy(ctx context.Context, name string) error
}

// DeploymentReader is the part of the DeploymentEngine the handler uses.
type DeploymentReader interface {
	Lookup(name string) (*deployDomain.Version, bool)
	Status(name string) (deployDomain.Status, error)
	Statuses() []deployDomain.Status
	Versions(name string) ([]*deployDomain.Version, error)
}

// TopologyHandler handles HTTP requests for topologies and their deployments.
type TopologyHandler struct {
	topologies  TopologyReader
	deployments DeploymentReader
	logger      *slog.Logger
}

// NewTopologyHandler creates a new topology handler.
func NewTopologyHandler(
	topologies TopologyReader,
	deployments DeploymentReader,
	logger *slog.Logger,
) *TopologyHandler {
	return &TopologyHandler{
		topologies:  topologies,
		deployments: deployments,
		logger:      logger,
	}
}

// ListHandler lists known topologies with their deployment state.
// GET /v1/topologies - Returns 200 OK.
func (h *TopologyHandler) ListHandler(c *gin.Context) {
	response := dto.MapTopologiesToListResponse(h.topologies.Topologies(), h.deployments.Statuses())
	c.JSON(http.StatusOK, response)
}

// GetHandler returns a topology and its deployment status.
// GET /v1/topologies/:name - Returns 200 OK or 404 Not Found.
func (h *TopologyHandler) GetHandler(c *gin.Context) {
	name, ok := h.nameParam(c)
	if !ok {
		return
	}

	topology, err := h.topologies.Topology(name)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	var status *deployDomain.Status
	if s, err := h.deployments.Status(name); err == nil {
		status = &s
	} else if !errors.Is(err, errors.ErrNotFound) {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapTopologyToResponse(topology, status))
}

// VersionsHandler lists the on-disk versions of a topology.
// GET /v1/topologies/:name/versions - Returns 200 OK.
func (h *TopologyHandler) VersionsHandler(c *gin.Context) {
	name, ok := h.nameParam(c)
	if !ok {
		return
	}

	versions, err := h.deployments.Versions(name)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	active, _ := h.deployments.Lookup(name)
	c.JSON(http.StatusOK, dto.MapVersionsToListResponse(versions, active))
}

// RedeployHandler forces a redeploy of one topology.
// POST /v1/topologies/:name/redeploy - Returns 202 Accepted; the deployment itself
// is asynchronous.
func (h *TopologyHandler) RedeployHandler(c *gin.Context) {
	name, ok := h.nameParam(c)
	if !ok {
		return
	}

	if err := h.topologies.Redeploy(c.Request.Context(), name); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.RedeployResponse{Status: "accepted", Topology: name})
}

// RedeployAllHandler forces a redeploy of every known topology.
// POST /v1/topologies/redeploy - Returns 202 Accepted.
func (h *TopologyHandler) RedeployAllHandler(c *gin.Context) {
	if err := h.topologies.Redeploy(c.Request.Context(), ""); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.RedeployResponse{Status: "accepted"})
}

func (h *TopologyHandler) nameParam(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if err := validation.Validate(name, validation.Required, customValidation.TopologyName); err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid topology name: %w", err), h.logger)
		return "", false
	}
	return name, true
}
