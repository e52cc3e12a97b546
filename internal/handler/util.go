package handler

import (
	"encoding/json"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// jsonResponse marshals v as the response body with the right content type.
func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(v)
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// textResponse returns a plain-text body, used for error messages.
func textResponse(status int, msg string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       msg,
	}
}

// queryInt reads an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(req events.APIGatewayProxyRequest, name string, def int) int {
	raw := req.QueryStringParameters[name]
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
