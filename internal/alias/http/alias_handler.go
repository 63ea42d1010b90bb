// Package http provides HTTP handlers for alias management.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/jellydator/validation"

	"github.com/allisson/topogate/internal/alias"
	"github.com/allisson/topogate/internal/alias/http/dto"
	"github.com/allisson/topogate/internal/httputil"
	customValidation "github.com/allisson/topogate/internal/validation"
)

// AliasManager is the part of the AliasService the handler uses.
type AliasManager interface {
	SetAlias(ctx context.Context, alias, value string) error
	RemoveAlias(ctx context.Context, alias string) error
	ListAliases(ctx context.Context) ([]string, error)
}

// AliasHandler handles HTTP requests for alias management. Alias values are
// write-only over HTTP.
type AliasHandler struct {
	aliases AliasManager
	logger  *slog.Logger
}

// NewAliasHandler creates a new alias handler.
func NewAliasHandler(aliases AliasManager, logger *slog.Logger) *AliasHandler {
	return &AliasHandler{aliases: aliases, logger: logger}
}

// ListHandler lists alias names with pagination.
// GET /v1/aliases?offset=0&limit=50 - Returns 200 OK.
func (h *AliasHandler) ListHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	aliases, err := h.aliases.ListAliases(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapAliasesToListResponse(aliases, offset, limit))
}

// SetHandler creates or replaces an alias value. The optional "topology" query
// parameter scopes the alias to one topology.
// PUT /v1/aliases/:name - Returns 200 OK.
func (h *AliasHandler) SetHandler(c *gin.Context) {
	name, topology, ok := h.aliasParams(c)
	if !ok {
		return
	}

	var req dto.SetAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	if err := h.aliases.SetAlias(c.Request.Context(), keystoreAlias(name, topology), req.Value); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.AliasResponse{Name: name, Topology: topology})
}

// DeleteHandler removes an alias.
// DELETE /v1/aliases/:name - Returns 204 No Content.
func (h *AliasHandler) DeleteHandler(c *gin.Context) {
	name, topology, ok := h.aliasParams(c)
	if !ok {
		return
	}

	if err := h.aliases.RemoveAlias(c.Request.Context(), keystoreAlias(name, topology)); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.Data(http.StatusNoContent, "application/json", nil)
}

func (h *AliasHandler) aliasParams(c *gin.Context) (string, string, bool) {
	name := c.Param("name")
	if err := validation.Validate(name, validation.Required, customValidation.AliasName); err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid alias name: %w", err), h.logger)
		return "", "", false
	}

	topology := c.Query("topology")
	if err := validation.Validate(topology, customValidation.TopologyName); err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid topology name: %w", err), h.logger)
		return "", "", false
	}
	return name, topology, true
}

func keystoreAlias(name, topology string) string {
	if topology == "" {
		return name
	}
	return alias.TopologyAlias(topology, name)
}
