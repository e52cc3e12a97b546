// Package app wires the storage, locking, repository and search components
// and routes API Gateway requests to the handlers.
package app

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/tomoki/redline/internal/config"
	"github.com/tomoki/redline/internal/docstore"
	"github.com/tomoki/redline/internal/handler"
	"github.com/tomoki/redline/internal/lock"
	"github.com/tomoki/redline/internal/logger"
	"github.com/tomoki/redline/internal/search"
	"github.com/tomoki/redline/internal/store"
	"github.com/tomoki/redline/internal/store/dynamo"
	"github.com/tomoki/redline/internal/store/memory"
)

// App holds the dependencies for the Lambda function.
type App struct {
	documentHandler *handler.DocumentHandler
	searchHandler   *handler.SearchHandler
}

// NewApp initializes the application dependencies. DEV_MODE=true swaps the
// DynamoDB object store for the in-memory one.
func NewApp(ctx context.Context) *App {
	var objects store.ObjectStore
	if os.Getenv("DEV_MODE") == "true" {
		objects = memory.New()
		logger.Sugar.Info("Using in-memory object store (DEV_MODE=true)")
	} else {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Sugar.Fatalw("load AWS config", "error", err)
		}

		var resolver config.Resolver = config.NewSSMResolver(ssm.NewFromConfig(cfg))
		tableParam := os.Getenv("OBJECT_TABLE_PARAM")
		if tableParam == "" {
			tableParam = "/redline/object-table"
		}
		tableName, err := resolver.GetParameter(ctx, tableParam)
		if err != nil {
			logger.Sugar.Warnw("resolve object table parameter", "param", tableParam, "error", err)
			tableName, err = config.NewEnvResolver().GetParameter(ctx, tableParam)
			if err != nil {
				tableName = "RedlineObjects"
			}
		}

		objects = dynamo.New(dynamodb.NewFromConfig(cfg), tableName)
		logger.Sugar.Infow("Using DynamoDB object store", "table", tableName)
	}

	lockTimeout := lock.DefaultTimeout
	if raw := os.Getenv("LOCK_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			lockTimeout = d
		} else {
			logger.Sugar.Warnw("invalid LOCK_TIMEOUT, using default", "value", raw)
		}
	}

	coordinator := lock.NewCoordinator(objects, lockTimeout)
	repo := docstore.New(objects, coordinator)
	engine := search.New(repo)

	return &App{
		documentHandler: handler.NewDocumentHandler(repo, engine),
		searchHandler:   handler.NewSearchHandler(repo, engine),
	}
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	logger.Sugar.Debugw("request", "method", method, "path", path)

	// CORS Preflight
	if method == "OPTIONS" {
		return corsResponse(events.APIGatewayProxyResponse{StatusCode: 204}), nil
	}

	// Strip /api prefix if present (for CloudFront proxying)
	if strings.HasPrefix(path, "/api") {
		path = strings.TrimPrefix(path, "/api")
	}

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	// /locks
	if path == "/locks/cleanup" && method == "POST" {
		return corsResponse(must(app.documentHandler.CleanupLocks(ctx, req))), nil
	}

	// /documents
	if strings.HasPrefix(path, "/documents") {
		if path == "/documents" && method == "POST" {
			return corsResponse(must(app.documentHandler.CreateDocument(ctx, req))), nil
		}
		if path == "/documents" && method == "GET" {
			return corsResponse(must(app.documentHandler.ListDocumentIDs(ctx, req))), nil
		}
		if path == "/documents/redline/range" && method == "PATCH" {
			return corsResponse(must(app.documentHandler.RedlineByRange(ctx, req))), nil
		}
		if path == "/documents/redline/target" && method == "PATCH" {
			return corsResponse(must(app.documentHandler.RedlineByTarget(ctx, req))), nil
		}
		if path == "/documents/search" && method == "GET" {
			return corsResponse(must(app.searchHandler.Search(ctx, req))), nil
		}

		// /documents/{id}[/...]
		if len(path) > len("/documents/") {
			pathParts := strings.Split(strings.Trim(path, "/"), "/")
			req.PathParameters["id"] = pathParts[1]

			if len(pathParts) == 2 {
				if method == "GET" {
					return corsResponse(must(app.documentHandler.GetDocument(ctx, req))), nil
				}
				if method == "DELETE" {
					return corsResponse(must(app.documentHandler.DeleteDocument(ctx, req))), nil
				}
			}
			if len(pathParts) == 3 {
				if pathParts[2] == "append" && method == "POST" {
					return corsResponse(must(app.documentHandler.AppendDocument(ctx, req))), nil
				}
				if pathParts[2] == "search" && method == "GET" {
					return corsResponse(must(app.searchHandler.SearchDocument(ctx, req))), nil
				}
			}
		}
	}

	return corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       "Not Found: " + method + " " + path,
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = os.Getenv("FRONTEND_URL")
	if resp.Headers["Access-Control-Allow-Origin"] == "" {
		resp.Headers["Access-Control-Allow-Origin"] = "*"
	}
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,DELETE,OPTIONS,PATCH"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type"
	return resp
}

// must unwraps a handler response, ignoring the error.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		logger.Sugar.Errorw("handler error", "error", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
