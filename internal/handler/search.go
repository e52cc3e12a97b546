package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/tomoki/redline/internal/docstore"
	"github.com/tomoki/redline/internal/logger"
	"github.com/tomoki/redline/internal/search"
)

// SearchHandler handles global and per-document search requests.
type SearchHandler struct {
	repo   *docstore.Repository
	engine *search.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(repo *docstore.Repository, engine *search.Engine) *SearchHandler {
	return &SearchHandler{repo: repo, engine: engine}
}

// Search handles GET /documents/search across all documents.
func (h *SearchHandler) Search(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	query := req.QueryStringParameters["q"]
	if query == "" {
		return textResponse(http.StatusBadRequest, "Missing query parameter: q"), nil
	}
	limit := queryInt(req, "limit", 10)
	offset := queryInt(req, "offset", 0)
	buffer := queryInt(req, "buffer", 50)

	results, err := h.engine.SearchAll(ctx, query, limit, offset, buffer)
	if err != nil {
		logger.Sugar.Errorw("search", "query", query, "error", err)
		return textResponse(http.StatusInternalServerError, "Search failed"), nil
	}

	return jsonResponse(http.StatusOK, struct {
		Results []search.Result `json:"results"`
	}{Results: results}), nil
}

// SearchDocument handles GET /documents/{id}/search within one document.
// The document is read through the unlocked accessor: search never contends
// for document locks.
func (h *SearchHandler) SearchDocument(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.PathParameters["id"]
	if id == "" {
		return textResponse(http.StatusBadRequest, "Missing document ID"), nil
	}
	query := req.QueryStringParameters["q"]
	if query == "" {
		return textResponse(http.StatusBadRequest, "Missing query parameter: q"), nil
	}
	buffer := queryInt(req, "buffer", 50)

	doc, err := h.repo.GetUnlocked(ctx, id)
	if err != nil {
		logger.Sugar.Errorw("read document for search", "document", id, "error", err)
		return textResponse(http.StatusInternalServerError, "Search failed"), nil
	}
	if doc == nil {
		return textResponse(http.StatusNotFound, "Document not found"), nil
	}

	results, err := h.engine.SearchDocument(ctx, doc, query, buffer)
	if err != nil {
		logger.Sugar.Errorw("search document", "document", id, "query", query, "error", err)
		return textResponse(http.StatusInternalServerError, "Search failed"), nil
	}

	return jsonResponse(http.StatusOK, struct {
		Results []search.Result `json:"results"`
	}{Results: results}), nil
}
