package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/model"
	"github.com/stemsi/classbook/internal/response"
	"github.com/stemsi/classbook/internal/service"
	"github.com/stemsi/classbook/internal/validator"
)

// CatalogHandler exposes the admin display-order controls.
type CatalogHandler struct {
	catalogService *service.CatalogService
	log            zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(catalogService *service.CatalogService, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		log:            log.With().Str("component", "catalog_handler").Logger(),
	}
}

// GetCatalog godoc
// GET /api/v1/admin/catalog
// Returns the current order with its version token.
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	order, err := h.catalogService.Snapshot(c.Request.Context())
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"catalog": order})
}

// ReorderCatalog godoc
// PUT /api/v1/admin/catalog/order
// Replaces the full order. Fails with CONCURRENCY_CONFLICT on a stale version.
func (h *CatalogHandler) ReorderCatalog(c *gin.Context) {
	var req model.ReorderRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ids := make([]uuid.UUID, len(req.IDs))
	for i, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"ids": "must contain class IDs"})
			return
		}
		ids[i] = id
	}

	order, err := h.catalogService.Reorder(c.Request.Context(), ids, *req.Version)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"catalog": order})
}

// SwapCatalog godoc
// POST /api/v1/admin/catalog/swap
// Exchanges two positions. Out-of-range positions leave the order unchanged.
func (h *CatalogHandler) SwapCatalog(c *gin.Context) {
	var req model.SwapRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	order, err := h.catalogService.Swap(c.Request.Context(), *req.PositionA, *req.PositionB, *req.Version)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"catalog": order})
}
