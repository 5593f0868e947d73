package tools

import (
	"context"
	"strconv"

	"github.com/ghgate/ghgate/internal/dispatch"
	"github.com/ghgate/ghgate/internal/safe"
)

// ProjectV2 operations go through the GraphQL endpoint. The project
// allowlist check has already run by the time a handler executes.

const projectQuery = `
query($owner: String!, $number: Int!) {
  organization(login: $owner) {
    projectV2(number: $number) { id title number closed url }
  }
}`

const projectQueryUser = `
query($owner: String!, $number: Int!) {
  user(login: $owner) {
    projectV2(number: $number) { id title number closed url }
  }
}`

const addItemMutation = `
mutation($projectId: ID!, $contentId: ID!) {
  addProjectV2ItemById(input: {projectId: $projectId, contentId: $contentId}) {
    item { id }
  }
}`

const updateFieldMutation = `
mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $value: ProjectV2FieldValue!) {
  updateProjectV2ItemFieldValue(input: {projectId: $projectId, itemId: $itemId, fieldId: $fieldId, value: $value}) {
    projectV2Item { id }
  }
}`

// resolveProject looks the project up under the owner as an organization
// first, then as a user.
func resolveProject(ctx context.Context, rt *dispatch.Runtime, owner string, number int) (map[string]any, error) {
	vars := map[string]any{"owner": owner, "number": number}

	data, err := rt.GraphQL.ExecuteGraphQL(ctx, projectQuery, vars)
	if err == nil {
		if project := projectFrom(data, "organization"); project != nil {
			return project, nil
		}
	}

	data, err = rt.GraphQL.ExecuteGraphQL(ctx, projectQueryUser, vars)
	if err != nil {
		return nil, err
	}
	if project := projectFrom(data, "user"); project != nil {
		return project, nil
	}
	return nil, safe.NotFound("project %d not found for owner %q", number, owner)
}

func projectFrom(data map[string]any, root string) map[string]any {
	node, _ := data[root].(map[string]any)
	project, _ := node["projectV2"].(map[string]any)
	return project
}

func getProject(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	project, err := resolveProject(ctx, rt, stringArg(args, "owner"), intArg(args, "project_number"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"project": project}, nil
}

func addProjectItem(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	project, err := resolveProject(ctx, rt, stringArg(args, "owner"), intArg(args, "project_number"))
	if err != nil {
		return nil, err
	}
	projectID, _ := project["id"].(string)

	data, err := rt.GraphQL.ExecuteGraphQL(ctx, addItemMutation, map[string]any{
		"projectId": projectID,
		"contentId": stringArg(args, "content_id"),
	})
	if err != nil {
		return nil, err
	}
	payload, _ := data["addProjectV2ItemById"].(map[string]any)
	item, _ := payload["item"].(map[string]any)
	if item == nil {
		return nil, safe.Upstream("add item response missing item", "")
	}
	return map[string]any{"item": item, "project_id": projectID}, nil
}

func updateProjectField(ctx context.Context, rt *dispatch.Runtime, args map[string]any) (map[string]any, error) {
	project, err := resolveProject(ctx, rt, stringArg(args, "owner"), intArg(args, "project_number"))
	if err != nil {
		return nil, err
	}
	projectID, _ := project["id"].(string)

	value, err := fieldValue(args)
	if err != nil {
		return nil, err
	}
	data, err := rt.GraphQL.ExecuteGraphQL(ctx, updateFieldMutation, map[string]any{
		"projectId": projectID,
		"itemId":    stringArg(args, "item_id"),
		"fieldId":   stringArg(args, "field_id"),
		"value":     value,
	})
	if err != nil {
		return nil, err
	}
	payload, _ := data["updateProjectV2ItemFieldValue"].(map[string]any)
	item, _ := payload["projectV2Item"].(map[string]any)
	if item == nil {
		return nil, safe.Upstream("update field response missing item", "")
	}
	return map[string]any{"item": item, "project_id": projectID}, nil
}

// fieldValue maps the declared value_type onto the GraphQL input union.
func fieldValue(args map[string]any) (map[string]any, error) {
	raw := stringArg(args, "value")
	switch stringArg(args, "value_type") {
	case "", "text":
		return map[string]any{"text": raw}, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, safe.UserInput("value %q is not a number", raw)
		}
		return map[string]any{"number": f}, nil
	case "single_select_option_id":
		return map[string]any{"singleSelectOptionId": raw}, nil
	default:
		return nil, safe.UserInput("unsupported value_type")
	}
}
