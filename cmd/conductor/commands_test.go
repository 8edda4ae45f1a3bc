package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/conductor/pkg/cmd"
	"github.com/dukex/conductor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetingWorkflow = `
name: greeting
steps:
  - id: greet
    name: Greet
    type: tool
    on_error: fail
    config:
      tool: log
      params:
        message: "hello {who}"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"who=world", "count=3", "enabled=true", "empty="})
	require.NoError(t, err)

	assert.Equal(t, "world", vars["who"])
	assert.Equal(t, 3, vars["count"])
	assert.Equal(t, true, vars["enabled"])
	assert.Equal(t, "", vars["empty"])
}

func TestParseVars_Invalid(t *testing.T) {
	_, err := parseVars([]string{"novalue"})
	require.ErrorIs(t, err, ErrInvalidVar)

	_, err = parseVars([]string{"=value"})
	require.ErrorIs(t, err, ErrInvalidVar)
}

func TestRunWorkflowFile(t *testing.T) {
	path := writeFile(t, "greeting.yaml", greetingWorkflow)
	engine := newEngine(slog.Default(), cmd.LLMConfig{Model: "test-model"}, time.Millisecond)

	var out bytes.Buffer
	require.NoError(t, runWorkflowFile(t.Context(), &out, engine, path, map[string]any{"who": "world"}))

	var summary models.ExecutionSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))

	assert.Equal(t, models.ExecutionStatusCompleted, summary.Status)
	assert.Equal(t, "greeting", summary.WorkflowID)

	result, ok := summary.StepResults["greet"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello world", result["output"])
}

func TestRunWorkflowFile_Failed(t *testing.T) {
	path := writeFile(t, "broken.json", `{
		"name": "broken",
		"steps": [{"id": "missing", "name": "Missing", "type": "tool", "on_error": "fail",
			"config": {"tool": "does-not-exist"}}]
	}`)
	engine := newEngine(slog.Default(), cmd.LLMConfig{Model: "test-model"}, time.Millisecond)

	var out bytes.Buffer
	err := runWorkflowFile(t.Context(), &out, engine, path, nil)

	require.ErrorIs(t, err, ErrWorkflowFailed)
	assert.Contains(t, out.String(), `"status": "failed"`)
}

func TestValidateWorkflowFile(t *testing.T) {
	var out bytes.Buffer

	path := writeFile(t, "greeting.yml", greetingWorkflow)
	require.NoError(t, validateWorkflowFile(&out, slog.Default(), path))
	assert.Equal(t, "greeting: 1 steps, valid\n", out.String())

	invalid := writeFile(t, "invalid.json", `{"name": "", "steps": [{"id": "a", "type": "teleport"}]}`)
	require.Error(t, validateWorkflowFile(&out, slog.Default(), invalid))

	require.Error(t, validateWorkflowFile(&out, slog.Default(), filepath.Join(t.TempDir(), "absent.json")))
}

func TestListTemplates(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listTemplates(&out))

	assert.Contains(t, out.String(), "research_template")
	assert.Contains(t, out.String(), "data_processing_template")
	assert.Contains(t, out.String(), "automation_template")
}
