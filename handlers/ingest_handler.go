package handlers

import (
	"errors"
	"net/http"

	"reguquery-backend/repository"
	"reguquery-backend/service"
	"reguquery-backend/storage"

	"github.com/gin-gonic/gin"
)

// IngestHandler handles HTTP requests for ingestion and document lookups
type IngestHandler struct {
	ingestService *service.IngestService
	docRepo       *repository.DocumentRepository
	source        storage.Source
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestService *service.IngestService, docRepo *repository.DocumentRepository, source storage.Source) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		docRepo:       docRepo,
		source:        source,
	}
}

// Ingest handles POST /api/ingest. It runs the configured source through
// the ingestion pipeline and returns the batch report.
func (h *IngestHandler) Ingest(c *gin.Context) {
	report, err := h.ingestService.Ingest(c.Request.Context(), h.source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGEST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}

// GetDocument handles GET /api/documents/:id
func (h *IngestHandler) GetDocument(c *gin.Context) {
	doc, err := h.docRepo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DOCUMENT_NOT_FOUND",
					"message": "No document with that id has been ingested",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LOOKUP_FAILED",
				"message": err.Error(),
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": doc,
	})
}
