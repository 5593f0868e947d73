package transport

import (
	"context"
	"net/http"

	"github.com/ghgate/ghgate/internal/safe"
)

// ExecuteGraphQL posts one query to the /graphql endpoint through the same
// retry pipeline as REST calls, then applies the GraphQL-specific
// classification: a non-empty top-level errors array fails the request even
// on HTTP 2xx, and a data field that is not an object is a malformed
// response.
func (c *Client) ExecuteGraphQL(ctx context.Context, query string, variables map[string]any) (map[string]any, error) {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}

	out, err := c.RequestJSON(ctx, http.MethodPost, "/graphql", payload, nil)
	if err != nil {
		return nil, err
	}

	envelope, ok := out.(map[string]any)
	if !ok {
		return nil, safe.Upstream("graphql response is not a JSON object", "")
	}

	if errs, ok := envelope["errors"].([]any); ok && len(errs) > 0 {
		return nil, safe.Upstream("graphql request failed", firstErrorMessage(errs))
	}

	data, ok := envelope["data"].(map[string]any)
	if !ok {
		return nil, safe.Upstream("graphql data field is not an object", "")
	}
	return data, nil
}

// firstErrorMessage pulls the declared message out of the first GraphQL
// error, if it has one.
func firstErrorMessage(errs []any) string {
	first, ok := errs[0].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := first["message"].(string)
	return safe.TrimHint(msg)
}
