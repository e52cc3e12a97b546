package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tomoki/redline/internal/docstore"
	"github.com/tomoki/redline/internal/lock"
	"github.com/tomoki/redline/internal/logger"
	"github.com/tomoki/redline/internal/redline"
	"github.com/tomoki/redline/internal/search"
)

// DocumentHandler handles document CRUD and redline operations.
type DocumentHandler struct {
	repo   *docstore.Repository
	engine *search.Engine
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(repo *docstore.Repository, engine *search.Engine) *DocumentHandler {
	return &DocumentHandler{repo: repo, engine: engine}
}

// CreateDocument creates a new document and rebuilds the search index.
func (h *DocumentHandler) CreateDocument(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var input struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal([]byte(req.Body), &input); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}
	if input.Title == "" {
		return textResponse(http.StatusBadRequest, "Title is required"), nil
	}

	doc, err := h.repo.Create(ctx, input.Title, input.Text)
	if err != nil {
		logger.Sugar.Errorw("create document", "error", err)
		return textResponse(http.StatusInternalServerError, fmt.Sprintf("Failed to create document: %v", err)), nil
	}

	if err := h.engine.RebuildIndex(ctx); err != nil {
		logger.Sugar.Warnw("rebuild search index", "error", err)
	}

	return jsonResponse(http.StatusCreated, struct {
		ID        string `json:"id"`
		Version   int    `json:"version"`
		CreatedAt string `json:"created_at"`
	}{
		ID:        doc.ID,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt.Format(time.RFC3339),
	}), nil
}

// GetDocument returns one document in full.
func (h *DocumentHandler) GetDocument(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.PathParameters["id"]
	if id == "" {
		return textResponse(http.StatusBadRequest, "Missing document ID"), nil
	}

	doc, err := h.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, lock.ErrLockUnavailable) {
			return textResponse(http.StatusLocked, "Document is locked"), nil
		}
		logger.Sugar.Errorw("get document", "document", id, "error", err)
		return textResponse(http.StatusInternalServerError, fmt.Sprintf("Failed to get document: %v", err)), nil
	}
	if doc == nil {
		return textResponse(http.StatusNotFound, "Document not found"), nil
	}

	return jsonResponse(http.StatusOK, struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Text    string `json:"text"`
		Version int    `json:"version"`
	}{
		ID:      doc.ID,
		Title:   doc.Title,
		Text:    doc.Text,
		Version: doc.Version,
	}), nil
}

// ListDocumentIDs returns the ids of all documents.
func (h *DocumentHandler) ListDocumentIDs(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	docs, err := h.repo.GetAll(ctx)
	if err != nil {
		logger.Sugar.Errorw("list documents", "error", err)
		return textResponse(http.StatusInternalServerError, "Failed to list documents"), nil
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return jsonResponse(http.StatusOK, ids), nil
}

// AppendDocument appends text to a document's body.
func (h *DocumentHandler) AppendDocument(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.PathParameters["id"]
	if id == "" {
		return textResponse(http.StatusBadRequest, "Missing document ID"), nil
	}

	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(req.Body), &input); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	doc, err := h.repo.Append(ctx, id, input.Text)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return textResponse(http.StatusNotFound, "Document not found"), nil
		}
		if errors.Is(err, lock.ErrLockUnavailable) {
			return textResponse(http.StatusLocked, "Document is locked"), nil
		}
		logger.Sugar.Errorw("append document", "document", id, "error", err)
		return textResponse(http.StatusInternalServerError, fmt.Sprintf("Failed to append: %v", err)), nil
	}

	if err := h.engine.RebuildIndex(ctx); err != nil {
		logger.Sugar.Warnw("rebuild search index", "error", err)
	}

	return jsonResponse(http.StatusOK, struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}{ID: doc.ID, Version: doc.Version}), nil
}

// DeleteDocument removes a document and its lock record.
func (h *DocumentHandler) DeleteDocument(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.PathParameters["id"]
	if id == "" {
		return textResponse(http.StatusBadRequest, "Missing document ID"), nil
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return textResponse(http.StatusNotFound, "Document not found"), nil
		}
		if errors.Is(err, lock.ErrLockUnavailable) {
			return textResponse(http.StatusLocked, "Document is locked"), nil
		}
		logger.Sugar.Errorw("delete document", "document", id, "error", err)
		return textResponse(http.StatusInternalServerError, fmt.Sprintf("Failed to delete document: %v", err)), nil
	}

	if err := h.engine.RebuildIndex(ctx); err != nil {
		logger.Sugar.Warnw("rebuild search index", "error", err)
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}

type rangeRedlineItem struct {
	DocumentID string `json:"document_id"`
	Range      struct {
		Start int `json:"start"`
		End   int `json:"end"`
	} `json:"range"`
	Replacement string `json:"replacement"`
}

// RedlineByRange applies one range edit per listed document.
func (h *DocumentHandler) RedlineByRange(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var input struct {
		Documents []rangeRedlineItem `json:"documents"`
	}
	if err := json.Unmarshal([]byte(req.Body), &input); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	requests := make([]docstore.RedlineRequest, 0, len(input.Documents))
	for _, item := range input.Documents {
		requests = append(requests, docstore.RedlineRequest{
			DocumentID: item.DocumentID,
			Edit:       redline.NewRangeEdit(item.Range.Start, item.Range.End, item.Replacement),
		})
	}
	return h.runRedline(ctx, requests), nil
}

type targetRedlineItem struct {
	DocumentID  string `json:"document_id"`
	TargetText  string `json:"target_text"`
	Replacement string `json:"replacement"`
	Occurrence  int    `json:"occurrence"`
}

// RedlineByTarget applies one target edit per listed document. Occurrence
// defaults to 1 when omitted.
func (h *DocumentHandler) RedlineByTarget(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var input struct {
		Documents []targetRedlineItem `json:"documents"`
	}
	if err := json.Unmarshal([]byte(req.Body), &input); err != nil {
		return textResponse(http.StatusBadRequest, "Invalid request body"), nil
	}

	requests := make([]docstore.RedlineRequest, 0, len(input.Documents))
	for _, item := range input.Documents {
		occurrence := item.Occurrence
		if occurrence == 0 {
			occurrence = 1
		}
		requests = append(requests, docstore.RedlineRequest{
			DocumentID: item.DocumentID,
			Edit:       redline.NewTargetEdit(item.TargetText, occurrence, item.Replacement),
		})
	}
	return h.runRedline(ctx, requests), nil
}

func (h *DocumentHandler) runRedline(ctx context.Context, requests []docstore.RedlineRequest) events.APIGatewayProxyResponse {
	result := h.repo.RedlineBatch(ctx, requests)

	if len(result.Documents) > 0 {
		if err := h.engine.RebuildIndex(ctx); err != nil {
			logger.Sugar.Warnw("rebuild search index", "error", err)
		}
	}
	return jsonResponse(http.StatusOK, result)
}

// CleanupLocks removes expired and unreadable lock records.
func (h *DocumentHandler) CleanupLocks(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	removed := h.repo.CleanupExpiredLocks(ctx)
	return jsonResponse(http.StatusOK, struct {
		Removed int `json:"removed"`
	}{Removed: removed}), nil
}
