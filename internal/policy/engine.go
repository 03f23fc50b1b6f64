package policy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
)

//go:embed policies/*.rego
var embeddedPolicies embed.FS

// denyQuery is the decision path every module contributes to.
const denyQuery = "data.docker.deny"

// Violation is one policy denial for a Dockerfile.
type Violation struct {
	// Policy identifies the rule that fired, e.g. "user-required".
	Policy string `json:"policy"`

	// Line is the 1-based Dockerfile line, 0 for whole-file denials.
	Line int `json:"line,omitempty"`

	// Message describes the denial.
	Message string `json:"message"`
}

// Engine evaluates the deny set over parsed Dockerfiles using an
// embedded OPA instance. The query is prepared once at construction,
// so a single engine can check many files cheaply.
type Engine struct {
	moduleOrder []string
	prepared    rego.PreparedEvalQuery
}

// NewEngine compiles the given Rego modules, keyed by module name, and
// prepares the deny query. Modules are parsed as Rego v1.
func NewEngine(ctx context.Context, modules map[string]string) (*Engine, error) {
	if len(modules) == 0 {
		return nil, fmt.Errorf("policy engine requires at least one rego module")
	}

	moduleOrder := make([]string, 0, len(modules))
	for name := range modules {
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	opts := make([]func(*rego.Rego), 0, len(moduleOrder)+1)
	opts = append(opts, rego.Query(denyQuery))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		opts = append(opts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return &Engine{moduleOrder: moduleOrder, prepared: prepared}, nil
}

// NewDefaultEngine builds an engine from the built-in modules plus any
// *.rego files under policyDir. A directory module with the same file
// name as a built-in replaces it; policyDir may be empty.
func NewDefaultEngine(ctx context.Context, policyDir string) (*Engine, error) {
	modules, err := DefaultModules()
	if err != nil {
		return nil, err
	}

	if policyDir != "" {
		custom, err := LoadDir(policyDir)
		if err != nil {
			return nil, err
		}
		for name, src := range custom {
			modules[name] = src
		}
	}

	return NewEngine(ctx, modules)
}

// DefaultModules returns the built-in policy modules keyed by file name.
func DefaultModules() (map[string]string, error) {
	names, err := fs.Glob(embeddedPolicies, "policies/*.rego")
	if err != nil {
		return nil, fmt.Errorf("list embedded policies: %w", err)
	}

	modules := make(map[string]string, len(names))
	for _, name := range names {
		src, err := embeddedPolicies.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read embedded policy %q: %w", name, err)
		}
		modules[filepath.Base(name)] = string(src)
	}
	return modules, nil
}

// LoadDir reads every *.rego file directly under dir, keyed by file
// name.
func LoadDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read policy dir: %w", err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read policy %q: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(src)
	}

	if len(modules) == 0 {
		return nil, fmt.Errorf("no .rego files in %s", dir)
	}
	return modules, nil
}

// Modules returns the loaded module names in evaluation order.
func (e *Engine) Modules() []string {
	names := make([]string, len(e.moduleOrder))
	copy(names, e.moduleOrder)
	return names
}

// Evaluate checks parsed instructions against the deny set. variant is
// the recipe the file was rendered from; nil disables the contract
// rules and leaves the baseline ones. Custom modules may emit either
// structured denials ({"policy", "line", "msg"}) or plain strings.
func (e *Engine) Evaluate(ctx context.Context, instructions []dockerfile.Instruction, variant *model.Variant) ([]Violation, error) {
	payload := map[string]interface{}{
		"instructions": instructions,
		"variant":      variant,
	}

	// Round-trip through JSON so the policy sees exactly the shapes
	// the struct tags declare.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode policy input: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("encode policy input: %w", err)
	}

	results, err := e.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	violations, err := decodeDenySet(results[0].Expressions[0].Value)
	if err != nil {
		return nil, err
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		if violations[i].Policy != violations[j].Policy {
			return violations[i].Policy < violations[j].Policy
		}
		return violations[i].Message < violations[j].Message
	})
	return violations, nil
}

// decodeDenySet converts the evaluated deny set into violations.
func decodeDenySet(value interface{}) ([]Violation, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("decode policy result: %w", err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode policy result: unexpected shape %T", value)
	}

	violations := make([]Violation, 0, len(entries))
	for _, entry := range entries {
		var structured struct {
			Policy string `json:"policy"`
			Line   int    `json:"line"`
			Msg    string `json:"msg"`
		}
		if err := json.Unmarshal(entry, &structured); err == nil && structured.Msg != "" {
			violations = append(violations, Violation{
				Policy:  structured.Policy,
				Line:    structured.Line,
				Message: structured.Msg,
			})
			continue
		}

		var message string
		if err := json.Unmarshal(entry, &message); err != nil {
			return nil, fmt.Errorf("decode policy result: denial is neither an object nor a string: %s", entry)
		}
		violations = append(violations, Violation{Policy: "custom", Message: message})
	}
	return violations, nil
}
