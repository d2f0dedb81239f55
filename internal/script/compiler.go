package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/botrt/botrt/internal/session"
)

// Compiler turns dialog source into an executable unit plus tool
// descriptors. SET SCHEDULE lines register automations as a side effect
// of compiling.
type Compiler struct {
	store  *session.Store
	logger *slog.Logger
}

// NewCompiler creates a compiler. store may be nil, in which case
// SET SCHEDULE lines are stripped without registering anything.
func NewCompiler(store *session.Store, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{store: store, logger: logger}
}

// CompileSource compiles one script. name is the script name without
// extension; outputDir receives {name}.ast and, when the script declares
// parameters, {name}.mcp.json and {name}.tool.json.
func (c *Compiler) CompileSource(ctx context.Context, tenantID, name string, source []byte, outputDir string) (*CompilationResult, error) {
	def := ParseToolDefinition(name, string(source))

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ast, err := c.preprocess(ctx, tenantID, name, string(source))
	if err != nil {
		return nil, err
	}
	astPath := filepath.Join(outputDir, name+".ast")
	if err := os.WriteFile(astPath, []byte(ast), 0o644); err != nil {
		return nil, fmt.Errorf("write ast: %w", err)
	}

	result := &CompilationResult{Name: name, ASTPath: astPath}
	if len(def.Parameters) == 0 {
		return result, nil
	}

	mcp := generateMCPTool(def)
	openai := generateOpenAITool(def)
	if err := writeJSON(filepath.Join(outputDir, name+".mcp.json"), mcp); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(outputDir, name+".tool.json"), openai); err != nil {
		return nil, err
	}
	result.MCPTool = mcp
	result.OpenAITool = openai
	return result, nil
}

// ParseToolDefinition extracts the PARAM and DESCRIPTION declarations
// from source.
func ParseToolDefinition(name, source string) *ToolDefinition {
	def := &ToolDefinition{Name: name}
	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "PARAM ") {
			if p, ok := parseParamLine(line); ok {
				def.Parameters = append(def.Parameters, p)
			}
		}
		if strings.HasPrefix(line, "DESCRIPTION ") {
			if v, ok := quoted(strings.TrimPrefix(line, "DESCRIPTION ")); ok {
				def.Description = v
			}
		}
	}
	return def
}

// parseParamLine parses one declaration of the form
// PARAM name AS type LIKE "example" ENUM ["a", "b"] DESCRIPTION "text".
// The AS clause is mandatory; every other clause is optional.
func parseParamLine(line string) (ParamDecl, bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return ParamDecl{}, false
	}
	p := ParamDecl{Name: fields[1], Required: true}

	typ := "string"
	for i, f := range fields {
		if f == "AS" && i+1 < len(fields) {
			typ = strings.ToLower(fields[i+1])
			break
		}
	}
	p.OriginalType = typ
	p.Type = normalizeType(typ)

	if idx := strings.Index(line, "LIKE"); idx >= 0 {
		if v, ok := quoted(line[idx+len("LIKE"):]); ok {
			p.Example = v
		}
	}
	if idx := strings.Index(line, "ENUM"); idx >= 0 {
		rest := line[idx+len("ENUM"):]
		if open := strings.Index(rest, "["); open >= 0 {
			if close := strings.Index(rest[open:], "]"); close >= 0 {
				for _, v := range strings.Split(rest[open+1:open+close], ",") {
					v = strings.Trim(strings.TrimSpace(v), `"'`)
					if v != "" {
						p.Enum = append(p.Enum, v)
					}
				}
			}
		}
	}
	if idx := strings.Index(line, "DESCRIPTION"); idx >= 0 {
		if v, ok := quoted(line[idx+len("DESCRIPTION"):]); ok {
			p.Description = v
		}
	}
	return p, true
}

// quoted extracts the first double-quoted string from s.
func quoted(s string) (string, bool) {
	start := strings.Index(s, `"`)
	if start < 0 {
		return "", false
	}
	end := strings.Index(s[start+1:], `"`)
	if end < 0 {
		return "", false
	}
	return s[start+1 : start+1+end], true
}

func normalizeType(t string) string {
	switch t {
	case "integer", "int", "number":
		return "integer"
	case "float", "double", "decimal":
		return "number"
	case "boolean", "bool":
		return "boolean"
	case "array", "list":
		return "array"
	case "object", "map":
		return "object"
	default:
		// string, text, date, datetime and unknown types all map to string
		return "string"
	}
}

// preprocess strips declarations and comments, registers SET SCHEDULE
// lines as automations, and injects suggestion commands for enum
// parameters. The result is the line-oriented executable form.
func (c *Compiler) preprocess(ctx context.Context, tenantID, name, source string) (string, error) {
	def := ParseToolDefinition(name, source)

	// Recompiling replaces any schedule the previous version registered.
	if c.store != nil {
		if err := c.clearSchedules(ctx, tenantID, name); err != nil {
			return "", err
		}
	}

	var out strings.Builder
	for _, raw := range strings.Split(source, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "'") ||
			strings.HasPrefix(line, "//") || strings.HasPrefix(line, "REM") {
			continue
		}
		if strings.HasPrefix(line, "PARAM ") {
			continue
		}
		if strings.HasPrefix(line, "DESCRIPTION ") {
			// Enum values become suggestion buttons right after the
			// description, matching where a reader expects them.
			for _, p := range def.Parameters {
				for _, v := range p.Enum {
					fmt.Fprintf(&out, "ADD SUGGESTION %q AS %q\n", v, v)
				}
			}
			continue
		}
		if strings.HasPrefix(line, "SET SCHEDULE") {
			cron, ok := quoted(line)
			if !ok {
				c.logger.Warn("malformed SET SCHEDULE line ignored", "script", name, "line", line)
				continue
			}
			if c.store != nil {
				if _, err := c.store.CreateAutomation(ctx, tenantID, session.AutomationKindScheduled, cron, name); err != nil {
					return "", fmt.Errorf("register schedule for %s: %w", name, err)
				}
				c.logger.Info("registered schedule", "script", name, "cron", cron)
			}
			continue
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	return out.String(), nil
}

func (c *Compiler) clearSchedules(ctx context.Context, tenantID, name string) error {
	err := c.store.DeleteAutomations(ctx, tenantID, session.AutomationKindScheduled, name)
	if err != nil {
		return fmt.Errorf("clear schedules for %s: %w", name, err)
	}
	return nil
}

func generateMCPTool(def *ToolDefinition) *MCPTool {
	props := make(map[string]MCPProperty, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		props[p.Name] = MCPProperty{
			Type:        p.Type,
			Description: p.Description,
			Example:     p.Example,
			Format:      dateFormat(p),
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &MCPTool{
		Name:        def.Name,
		Description: def.Description,
		InputSchema: MCPInputSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func generateOpenAITool(def *ToolDefinition) *OpenAITool {
	props := make(map[string]OpenAIProperty, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		props[p.Name] = OpenAIProperty{
			Type:        p.Type,
			Description: p.Description,
			Example:     p.Example,
			Enum:        p.Enum,
			Format:      dateFormat(p),
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &OpenAITool{
		Type: "function",
		Function: OpenAIFunction{
			Name:        def.Name,
			Description: def.Description,
			Parameters: OpenAIParameters{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

// dateFormat marks DATE parameters so clients render ISO 8601 pickers.
func dateFormat(p ParamDecl) string {
	if p.OriginalType == "date" {
		return "date"
	}
	return ""
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
