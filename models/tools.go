package models

// FunctionDeclaration describes an executable tool: its JSON Schema surface
// plus the function invoked when a model requests it.
type FunctionDeclaration struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  Parameters  `json:"parameters"`
	Callable    interface{} `json:"-"`
}

// Parameters defines the JSON Schema for function parameters
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// AsTool converts the declaration into the wire-format Tool advertised to
// providers. Nil Properties/Required are replaced with empty values because
// some APIs reject null where an object or array is expected.
func (fd FunctionDeclaration) AsTool() Tool {
	params := fd.Parameters
	if params.Type == "" {
		params.Type = "object"
	}
	if params.Properties == nil {
		params.Properties = map[string]interface{}{}
	}
	if params.Required == nil {
		params.Required = []string{}
	}
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        fd.Name,
			Description: fd.Description,
			Parameters:  params,
		},
	}
}
