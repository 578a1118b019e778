package service

import (
	"encoding/json"
	"fmt"

	"github.com/pagecraft/pagecraft/internal/port/provider"
)

const (
	toolApplyPatch = "apply_patch"
	toolRunCommand = "run_command"
)

// sessionTools is the fixed tool surface offered to the model on every turn.
var sessionTools = []provider.ToolDefinition{
	{
		Name: toolApplyPatch,
		Description: "Apply a patch to one file in the workspace. The patch uses " +
			"'*** Update File: <path>', '*** Add File: <path>' or '*** Delete File: <path>' " +
			"headers followed by @@-anchored hunks of ' ', '-' and '+' prefixed lines. " +
			"Context must match the current file content.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"patch": {
					"type": "string",
					"description": "The full patch text, including the file header."
				}
			},
			"required": ["patch"]
		}`),
	},
	{
		Name: toolRunCommand,
		Description: "Run a shell command inside the workspace sandbox. Returns exit code, " +
			"stdout and stderr. A non-zero exit code is a normal outcome, inspect the output " +
			"and decide how to proceed.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {
					"type": "string",
					"description": "The shell command to execute, interpreted by sh -c."
				}
			},
			"required": ["command"]
		}`),
	},
}

type applyPatchArgs struct {
	Patch string `json:"patch"`
}

type runCommandArgs struct {
	Command string `json:"command"`
}

func parseArgs(raw json.RawMessage, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("malformed tool arguments: %w", err)
	}
	return nil
}
