package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uzulab/drydock/internal/dockerfile"
	"github.com/uzulab/drydock/internal/model"
	"github.com/uzulab/drydock/internal/recipe"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewDefaultEngine(context.Background(), "")
	require.NoError(t, err)
	return engine
}

// evalContent parses raw content and evaluates it against the engine.
func evalContent(t *testing.T, engine *Engine, content string, variant *model.Variant) []Violation {
	t.Helper()
	violations, err := engine.Evaluate(context.Background(), dockerfile.Parse([]byte(content)), variant)
	require.NoError(t, err)
	return violations
}

func policies(violations []Violation) []string {
	names := make([]string, 0, len(violations))
	for _, v := range violations {
		names = append(names, v.Policy)
	}
	return names
}

// TestEvaluate_RenderedBuiltinsPass is the contract test: every
// built-in recipe renders a Dockerfile its own policy accepts.
func TestEvaluate_RenderedBuiltinsPass(t *testing.T) {
	engine := newTestEngine(t)

	for _, v := range recipe.Builtins() {
		t.Run(v.Name, func(t *testing.T) {
			content, err := dockerfile.Render(v)
			require.NoError(t, err)

			violations, err := engine.Evaluate(context.Background(), dockerfile.Parse(content), &v)
			require.NoError(t, err)
			assert.Empty(t, violations)
		})
	}
}

func TestEvaluate_BaselineRules(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name         string
		content      string
		wantPolicies []string
	}{
		{
			name:         "no user instruction",
			content:      "FROM python:3.10\nCMD [\"python\"]\n",
			wantPolicies: []string{"user-required"},
		},
		{
			name:         "final user is root",
			content:      "FROM python:3.10\nUSER app\nUSER root\nCMD [\"python\"]\n",
			wantPolicies: []string{"user-required"},
		},
		{
			name:         "final user uid zero with group",
			content:      "FROM python:3.10\nUSER 0:0\nCMD [\"python\"]\n",
			wantPolicies: []string{"user-required"},
		},
		{
			name:         "root earlier then non-root is fine",
			content:      "FROM python:3.10\nUSER root\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: nil,
		},
		{
			name:         "untagged base",
			content:      "FROM python\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: []string{"base-pinned"},
		},
		{
			name:         "latest base",
			content:      "FROM python:latest\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: []string{"base-pinned"},
		},
		{
			name:         "registry port is not a tag",
			content:      "FROM registry.local:5000/app\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: []string{"base-pinned"},
		},
		{
			name:         "digest pin accepted",
			content:      "FROM python@sha256:abcd\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: nil,
		},
		{
			name:         "every stage must be pinned",
			content:      "FROM python:3.10 AS build\nFROM python\nUSER app\nCMD [\"python\"]\n",
			wantPolicies: []string{"base-pinned"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := evalContent(t, engine, tt.content, nil)
			assert.ElementsMatch(t, tt.wantPolicies, policies(violations))
		})
	}
}

func TestEvaluate_NilVariantSkipsContractRules(t *testing.T) {
	engine := newTestEngine(t)

	// No CMD at all: a contract failure, but without a recipe attached
	// only the baseline rules run.
	violations := evalContent(t, engine, "FROM python:3.10\nUSER app\n", nil)
	assert.Empty(t, violations)
}

func TestEvaluate_ContractRules(t *testing.T) {
	engine := newTestEngine(t)

	fixed := model.Variant{
		Name:      "api",
		BaseImage: "python:3.10",
		ASGIApp:   "app:app",
		Port:      model.FixedPort(8000),
	}
	env := model.Variant{
		Name:      "cloud",
		BaseImage: "python:3.10",
		ASGIApp:   "app:app",
		Port:      model.EnvPort("PORT"),
	}

	tests := []struct {
		name         string
		content      string
		variant      model.Variant
		wantPolicies []string
	}{
		{
			name:         "missing launch command",
			content:      "FROM python:3.10\nUSER app\nEXPOSE 8000\n",
			variant:      fixed,
			wantPolicies: []string{"launch-cmd"},
		},
		{
			name: "multiple launch commands",
			content: "FROM python:3.10\nUSER app\nEXPOSE 8000\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"0.0.0.0\", \"--port\", \"8000\"]\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"0.0.0.0\", \"--port\", \"8000\"]\n",
			variant:      fixed,
			wantPolicies: []string{"launch-cmd"},
		},
		{
			name: "launches a different app",
			content: "FROM python:3.10\nUSER app\nEXPOSE 8000\n" +
				"CMD [\"uvicorn\", \"other:app\", \"--host\", \"0.0.0.0\", \"--port\", \"8000\"]\n",
			variant:      fixed,
			wantPolicies: []string{"launch-app"},
		},
		{
			name: "binds localhost only",
			content: "FROM python:3.10\nUSER app\nEXPOSE 8000\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"127.0.0.1\", \"--port\", \"8000\"]\n",
			variant:      fixed,
			wantPolicies: []string{"bind-address"},
		},
		{
			name: "declared port not exposed",
			content: "FROM python:3.10\nUSER app\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"0.0.0.0\", \"--port\", \"8000\"]\n",
			variant:      fixed,
			wantPolicies: []string{"port-exposed"},
		},
		{
			name: "serves a different port",
			content: "FROM python:3.10\nUSER app\nEXPOSE 8000\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"0.0.0.0\", \"--port\", \"9000\"]\n",
			variant:      fixed,
			wantPolicies: []string{"port-served"},
		},
		{
			name: "env port not read from environment",
			content: "FROM python:3.10\nUSER app\n" +
				"CMD [\"sh\", \"-c\", \"uvicorn app:app --host 0.0.0.0 --port 8000\"]\n",
			variant:      env,
			wantPolicies: []string{"port-env"},
		},
		{
			name: "env port without shell wrapper",
			content: "FROM python:3.10\nUSER app\n" +
				"CMD [\"uvicorn\", \"app:app\", \"--host\", \"0.0.0.0\", \"--port\", \"$PORT\"]\n",
			variant:      env,
			wantPolicies: []string{"port-env-shell"},
		},
		{
			name: "env port shell wrapped passes",
			content: "FROM python:3.10\nUSER app\n" +
				"CMD [\"sh\", \"-c\", \"uvicorn app:app --host 0.0.0.0 --port $PORT\"]\n",
			variant:      env,
			wantPolicies: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := evalContent(t, engine, tt.content, &tt.variant)
			assert.ElementsMatch(t, tt.wantPolicies, policies(violations))
		})
	}
}

func TestEvaluate_ViolationDetail(t *testing.T) {
	engine := newTestEngine(t)

	violations := evalContent(t, engine, "FROM python:3.10\nUSER app\nUSER root\nCMD [\"python\"]\n", nil)

	require.Len(t, violations, 1)
	assert.Equal(t, "user-required", violations[0].Policy)
	assert.Equal(t, 3, violations[0].Line)
	assert.Contains(t, violations[0].Message, "root")
}

func TestNewDefaultEngine_CustomDir(t *testing.T) {
	dir := t.TempDir()
	custom := `package docker

import rego.v1

deny contains msg if {
	some inst in input.instructions
	inst.cmd == "LABEL"
	contains(inst.args, "maintainer")
	msg := "maintainer label is deprecated"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.rego"), []byte(custom), 0o644))

	engine, err := NewDefaultEngine(context.Background(), dir)
	require.NoError(t, err)
	assert.Contains(t, engine.Modules(), "labels.rego")
	assert.Contains(t, engine.Modules(), "contract.rego")

	content := "FROM python:3.10\nUSER app\nLABEL maintainer=nobody\nCMD [\"python\"]\n"
	violations := evalContent(t, engine, content, nil)

	require.Len(t, violations, 1)
	assert.Equal(t, "custom", violations[0].Policy)
	assert.Equal(t, "maintainer label is deprecated", violations[0].Message)
}

func TestNewDefaultEngine_BadModule(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package docker\n\ndeny[msg] {"), 0o644))

	_, err := NewDefaultEngine(context.Background(), dir)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})

	t.Run("no rego files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a policy"), 0o644))
		_, err := LoadDir(dir)
		assert.Error(t, err)
	})
}

func TestNewEngine_NoModules(t *testing.T) {
	_, err := NewEngine(context.Background(), nil)
	assert.Error(t, err)
}
