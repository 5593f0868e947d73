package tools

import (
	"github.com/ghgate/ghgate/internal/dispatch"
)

// Register installs every tool into the dispatch registry. The registered
// names double as the compiled-in operation allowlist.
func Register(reg *dispatch.Registry) error {
	specs := []dispatch.ToolSpec{
		{
			Name:         "get_repository",
			Description:  "Fetch repository metadata",
			Schema:       objectSchema(repoProps(nil), "owner", "repo"),
			Handler:      getRepository,
			RequiresRepo: true,
		},
		{
			Name:        "get_file_contents",
			Description: "Read a file from a repository at an optional ref",
			Schema: objectSchema(repoProps(map[string]any{
				"path": str("File path within the repository"),
				"ref":  str("Branch, tag, or commit SHA (optional)"),
			}), "owner", "repo", "path"),
			Handler:      getFileContents,
			RequiresRepo: true,
		},
		{
			Name:         "list_branches",
			Description:  "List branches of a repository",
			Schema:       objectSchema(repoProps(nil), "owner", "repo"),
			Handler:      listBranches,
			RequiresRepo: true,
		},
		{
			Name:        "create_branch",
			Description: "Create a branch from an existing one",
			Schema: objectSchema(repoProps(map[string]any{
				"branch":      str("New branch name"),
				"from_branch": str("Branch to fork from"),
			}), "owner", "repo", "branch", "from_branch"),
			Handler:      createBranch,
			RequiresRepo: true,
			BranchParam:  "branch",
		},
		{
			Name:        "get_issue",
			Description: "Fetch one issue",
			Schema: objectSchema(repoProps(map[string]any{
				"issue_number": integer("Issue number"),
			}), "owner", "repo", "issue_number"),
			Handler:      getIssue,
			RequiresRepo: true,
		},
		{
			Name:        "create_issue",
			Description: "Open a new issue",
			Schema: objectSchema(repoProps(map[string]any{
				"title":  str("Issue title"),
				"body":   str("Issue body (optional)"),
				"labels": strArray("Labels to apply (optional)"),
			}), "owner", "repo", "title"),
			Handler:      createIssue,
			RequiresRepo: true,
		},
		{
			Name:        "update_issue",
			Description: "Update an issue's title, body, or state",
			Schema: objectSchema(repoProps(map[string]any{
				"issue_number": integer("Issue number"),
				"title":        str("New title (optional)"),
				"body":         str("New body (optional)"),
				"state":        map[string]any{"type": "string", "enum": []string{"open", "closed"}, "description": "New state (optional)"},
			}), "owner", "repo", "issue_number"),
			Handler:      updateIssue,
			RequiresRepo: true,
		},
		{
			Name:        "comment_on_issue",
			Description: "Add a comment to an issue or pull request",
			Schema: objectSchema(repoProps(map[string]any{
				"issue_number": integer("Issue or PR number"),
				"body":         str("Comment body"),
			}), "owner", "repo", "issue_number", "body"),
			Handler:      commentOnIssue,
			RequiresRepo: true,
		},
		{
			Name:        "get_pull_request",
			Description: "Fetch pull request metadata",
			Schema: objectSchema(repoProps(map[string]any{
				"pr_number": integer("Pull request number"),
			}), "owner", "repo", "pr_number"),
			Handler:      getPullRequest,
			RequiresRepo: true,
		},
		{
			Name:        "list_pull_request_files",
			Description: "List the files changed by a pull request",
			Schema: objectSchema(repoProps(map[string]any{
				"pr_number": integer("Pull request number"),
			}), "owner", "repo", "pr_number"),
			Handler:      listPullRequestFiles,
			RequiresRepo: true,
		},
		{
			Name:        "create_pull_request",
			Description: "Open a pull request",
			Schema: objectSchema(repoProps(map[string]any{
				"title": str("Pull request title"),
				"head":  str("Branch with the changes"),
				"base":  str("Branch to merge into"),
				"body":  str("Pull request body (optional)"),
				"draft": boolean("Open as draft (optional)"),
			}), "owner", "repo", "title", "head", "base"),
			Handler:      createPullRequest,
			RequiresRepo: true,
		},
		{
			Name:        "get_project",
			Description: "Fetch ProjectV2 metadata for an owner and project number",
			Schema: objectSchema(map[string]any{
				"owner":          str("Project owner (organization or user)"),
				"project_number": integer("Project number"),
			}, "owner", "project_number"),
			Handler: getProject,
			Project: true,
		},
		{
			Name:        "add_project_item",
			Description: "Add an issue or pull request to a ProjectV2 board",
			Schema: objectSchema(map[string]any{
				"owner":          str("Project owner (organization or user)"),
				"project_number": integer("Project number"),
				"content_id":     str("Node id of the issue or pull request"),
			}, "owner", "project_number", "content_id"),
			Handler: addProjectItem,
			Project: true,
		},
		{
			Name:        "update_project_field",
			Description: "Update one field value on a ProjectV2 item",
			Schema: objectSchema(map[string]any{
				"owner":          str("Project owner (organization or user)"),
				"project_number": integer("Project number"),
				"item_id":        str("Project item node id"),
				"field_id":       str("Field node id"),
				"value":          str("New field value"),
				"value_type":     map[string]any{"type": "string", "enum": []string{"text", "number", "single_select_option_id"}, "description": "How to interpret value (default text)"},
			}, "owner", "project_number", "item_id", "field_id", "value"),
			Handler: updateProjectField,
			Project: true,
		},
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}
