package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ghgate/ghgate/internal/dispatch"
	"github.com/ghgate/ghgate/internal/safe"
)

func getRepository(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"repository": out}, nil
}

func getFileContents(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	path := stringArg(args, "path")

	var query url.Values
	if ref := stringArg(args, "ref"); ref != "" {
		query = url.Values{"ref": []string{ref}}
	}
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path), nil, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"file": out}, nil
}

func listBranches(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/branches", owner, repo), nil, nil)
	if err != nil {
		return nil, err
	}
	branches, _ := out.([]any)
	return map[string]any{"branches": out, "count": len(branches)}, nil
}

// createBranch reads the base ref's SHA then creates the new ref from it.
func createBranch(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	branch := stringArg(args, "branch")
	from := stringArg(args, "from_branch")

	base, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", owner, repo, from), nil, nil)
	if err != nil {
		return nil, err
	}
	baseObj, ok := base.(map[string]any)
	if !ok {
		return nil, safe.Upstream("base ref response is not an object", "")
	}
	object, _ := baseObj["object"].(map[string]any)
	sha, _ := object["sha"].(string)
	if sha == "" {
		return nil, safe.Upstream("base ref response missing object.sha", "")
	}

	out, err := rt.REST.RequestJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/refs", owner, repo), map[string]any{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ref": out, "base_sha": sha}, nil
}
