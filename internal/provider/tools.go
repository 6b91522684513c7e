package provider

import (
	"github.com/cloudwego/eino/schema"
)

// toolCatalog declares the backend tools the permission layer can grant, so
// an allowlist of names can be bound to the chat model. The set mirrors the
// permission mappings; write and exec tools have no declaration here at all.
var toolCatalog = map[string]*schema.ToolInfo{
	"WebSearch": {
		Name: "WebSearch",
		Desc: "Searches the web and returns result summaries with links",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "The search query",
				Required: true,
			},
		}),
	},
	"WebFetch": {
		Name: "WebFetch",
		Desc: "Fetches a URL and extracts its content",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"url": {
				Type:     schema.String,
				Desc:     "The URL to fetch",
				Required: true,
			},
			"prompt": {
				Type: schema.String,
				Desc: "What to extract from the fetched page",
			},
		}),
	},
	"Read": {
		Name: "Read",
		Desc: "Reads a file from the local vault",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"file_path": {
				Type:     schema.String,
				Desc:     "Absolute path of the file to read",
				Required: true,
			},
		}),
	},
	"Grep": {
		Name: "Grep",
		Desc: "Searches file contents with a regular expression",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"pattern": {
				Type:     schema.String,
				Desc:     "The regular expression to search for",
				Required: true,
			},
			"path": {
				Type: schema.String,
				Desc: "Directory to search in",
			},
		}),
	},
	"Glob": {
		Name: "Glob",
		Desc: "Finds files matching a glob pattern",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"pattern": {
				Type:     schema.String,
				Desc:     "The glob pattern to match files against",
				Required: true,
			},
		}),
	},
	"Task": {
		Name: "Task",
		Desc: "Delegates a self-contained search task to a sub-agent",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"description": {
				Type:     schema.String,
				Desc:     "Short description of the task",
				Required: true,
			},
			"prompt": {
				Type:     schema.String,
				Desc:     "The full task instructions",
				Required: true,
			},
		}),
	},
	"TodoWrite": {
		Name: "TodoWrite",
		Desc: "Records the assistant's working plan as a todo list",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"todos": {
				Type: schema.Array,
				Desc: "The todo items",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.String,
					Desc: "One todo item",
				},
				Required: true,
			},
		}),
	},
}

// ToolInfos resolves an allowlist of tool names into eino tool declarations,
// preserving order. Names without a catalog entry are dropped.
func ToolInfos(names []string) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		if info, ok := toolCatalog[name]; ok {
			infos = append(infos, info)
		}
	}
	return infos
}
