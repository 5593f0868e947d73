package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ghgate/ghgate/internal/dispatch"
)

func getPullRequest(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	number := intArg(args, "pr_number")
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pull_request": out}, nil
}

func listPullRequestFiles(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	number := intArg(args, "pr_number")

	query := url.Values{"per_page": []string{"100"}}
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/files", owner, repo, number), nil, query)
	if err != nil {
		return nil, err
	}
	files, _ := out.([]any)
	return map[string]any{"files": out, "count": len(files)}, nil
}

func createPullRequest(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	body := map[string]any{
		"title": stringArg(args, "title"),
		"head":  stringArg(args, "head"),
		"base":  stringArg(args, "base"),
	}
	if text := stringArg(args, "body"); text != "" {
		body["body"] = text
	}
	if draft, ok := args["draft"].(bool); ok {
		body["draft"] = draft
	}
	out, err := rt.REST.RequestJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), body, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pull_request": out}, nil
}
