package api

import (
	"context"
	"errors"
	"net/http"

	"ibisync/internal/dto/req"
	"ibisync/internal/dto/resp"
	"ibisync/internal/model"
	"ibisync/internal/service"

	"github.com/gin-gonic/gin"
)

type CeisaProvider interface {
	Submit(ctx context.Context, documentNumber, documentType, payload, actor string) (*service.SubmissionResult, error)
	CheckStatus(ctx context.Context, reference string) (*model.CeisaStatusRecord, error)
	ListAll(ctx context.Context) ([]model.CeisaStatusRecord, error)
}

type CeisaHandler struct {
	service CeisaProvider
}

func NewCeisaHandler(service CeisaProvider) *CeisaHandler {
	return &CeisaHandler{service: service}
}

func (h *CeisaHandler) Submit(c *gin.Context) {
	var r req.CeisaSubmitRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON format error"})
		return
	}

	result, err := h.service.Submit(c.Request.Context(),
		r.DocumentNumber, r.DocumentType, r.Payload,
		service.GetOperator(c.Request.Context()))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrSubmissionFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, result)
}

// CheckStatus reads (and possibly advances) one submission. An unknown
// reference is an empty result, not an error.
func (h *CeisaHandler) CheckStatus(c *gin.Context) {
	var r req.CeisaStatusRequest
	if err := c.ShouldBindUri(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reference"})
		return
	}

	record, err := h.service.CheckStatus(c.Request.Context(), r.Reference)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (h *CeisaHandler) List(c *gin.Context) {
	records, err := h.service.ListAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp.CeisaListResponse{Records: records, Total: len(records)})
}
