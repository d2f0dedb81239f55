// Package script compiles dialog source files into executable units and
// tool descriptors, and runs them against a session.
package script

// ParamDecl is one PARAM declaration from a dialog source file.
type ParamDecl struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	OriginalType string   `json:"original_type"`
	Example      string   `json:"example,omitempty"`
	Description  string   `json:"description,omitempty"`
	Required     bool     `json:"required"`
	Enum         []string `json:"enum,omitempty"`
}

// ToolDefinition is the schema-facing view of a compiled script.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []ParamDecl `json:"parameters"`
}

// MCPProperty describes one input property in an MCP tool descriptor.
type MCPProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
	Format      string `json:"format,omitempty"`
}

// MCPInputSchema is the input schema block of an MCP tool descriptor.
type MCPInputSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]MCPProperty `json:"properties"`
	Required   []string               `json:"required"`
}

// MCPTool is the MCP tool descriptor written as {name}.mcp.json.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema MCPInputSchema `json:"inputSchema"`
}

// OpenAIProperty describes one parameter in an OpenAI function schema.
type OpenAIProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Example     string   `json:"example,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// OpenAIParameters is the parameters block of an OpenAI function schema.
type OpenAIParameters struct {
	Type       string                    `json:"type"`
	Properties map[string]OpenAIProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

// OpenAIFunction is the function block of an OpenAI tool descriptor.
type OpenAIFunction struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  OpenAIParameters `json:"parameters"`
}

// OpenAITool is the descriptor written as {name}.tool.json.
type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// CompilationResult reports what a compile produced. The descriptors
// are nil for scripts that declare no parameters.
type CompilationResult struct {
	Name       string
	ASTPath    string
	MCPTool    *MCPTool
	OpenAITool *OpenAITool
}
