package tools

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ghgate/ghgate/internal/dispatch"
)

func getIssue(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	number := intArg(args, "issue_number")
	out, err := rt.REST.RequestJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number), nil, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": out}, nil
}

func createIssue(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	body := map[string]any{"title": stringArg(args, "title")}
	if text := stringArg(args, "body"); text != "" {
		body["body"] = text
	}
	if labels := stringSliceArg(args, "labels"); len(labels) > 0 {
		body["labels"] = labels
	}
	out, err := rt.REST.RequestJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/issues", owner, repo), body, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": out}, nil
}

func updateIssue(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	number := intArg(args, "issue_number")

	body := map[string]any{}
	for _, key := range []string{"title", "body", "state"} {
		if v := stringArg(args, key); v != "" {
			body[key] = v
		}
	}
	out, err := rt.REST.RequestJSON(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number), body, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"issue": out}, nil
}

func commentOnIssue(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	owner, repo := stringArg(args, "owner"), stringArg(args, "repo")
	number := intArg(args, "issue_number")
	out, err := rt.REST.RequestJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number), map[string]any{
		"body": stringArg(args, "body"),
	}, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comment": out}, nil
}
