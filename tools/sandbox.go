package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/boat-builder/agentruntime"
	"github.com/boat-builder/agentruntime/sandbox"
)

// SandboxTools returns the file and execution tools bound to runner's workspace. Failures are
// returned as tool output, which lets the model see the exact message and adjust.
func SandboxTools(runner *sandbox.Runner) []agentruntime.Tool {
	ws := runner.Workspace()
	return []agentruntime.Tool{
		&sandboxTool[ReadFileArgs]{
			name:        "read_file",
			description: "Read contents of a file inside the sandbox",
			run: func(ctx context.Context, in ReadFileArgs) string {
				content, err := ws.ReadFile(in.Path)
				if err != nil {
					return fmt.Sprintf("Error reading file: %v", err)
				}
				return content
			},
		},
		&sandboxTool[WriteFileArgs]{
			name:        "write_file",
			description: "Write a single file inside the sandbox",
			run: func(ctx context.Context, in WriteFileArgs) string {
				if err := ws.WriteFile(in.Path, in.Data); err != nil {
					return fmt.Sprintf("Error writing file: %v", err)
				}
				return fmt.Sprintf("File created successfully at %s", in.Path)
			},
		},
		&sandboxTool[WriteFilesArgs]{
			name:        "write_files",
			description: "Write multiple files inside the sandbox",
			run: func(ctx context.Context, in WriteFilesArgs) string {
				for _, f := range in.Files {
					if err := ws.WriteFile(f.Path, f.Data); err != nil {
						return fmt.Sprintf("Error writing multiple files: %v", err)
					}
				}
				return fmt.Sprintf("%d file(s) created successfully", len(in.Files))
			},
		},
		&sandboxTool[ListFilesArgs]{
			name:        "list_files",
			description: "List files inside the sandbox",
			run: func(ctx context.Context, in ListFilesArgs) string {
				entries, err := ws.List(in.Path)
				if err != nil {
					return fmt.Sprintf("Error listing files: %v", err)
				}
				if len(entries) == 0 {
					return "No files found"
				}
				lines := make([]string, 0, len(entries))
				for _, e := range entries {
					if e.Dir {
						lines = append(lines, e.Path+"/")
						continue
					}
					lines = append(lines, fmt.Sprintf("%s (%d bytes)", e.Path, e.Size))
				}
				return strings.Join(lines, "\n")
			},
		},
		&sandboxTool[RunCommandsArgs]{
			name:        "run_commands",
			description: "Run a shell command inside the sandbox working directory",
			run: func(ctx context.Context, in RunCommandsArgs) string {
				res, err := runner.Run(ctx, in.Command)
				if err != nil {
					return fmt.Sprintf("Error running command: %v", err)
				}
				return formatRun(res)
			},
		},
		&sandboxTool[RunPythonArgs]{
			name:        "run_python_code",
			description: "Run Python code inside the sandbox and return its output",
			run: func(ctx context.Context, in RunPythonArgs) string {
				res, err := runner.RunPython(ctx, in.Code)
				if err != nil {
					return fmt.Sprintf("Error running code: %v", err)
				}
				return formatRun(res)
			},
		},
	}
}

type ReadFileArgs struct {
	Path string `json:"path" jsonschema:"description=File path relative to the sandbox root"`
}

type WriteFileArgs struct {
	Path string `json:"path" jsonschema:"description=File path relative to the sandbox root"`
	Data string `json:"data" jsonschema:"description=File content"`
}

type FileData struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

type WriteFilesArgs struct {
	Files []FileData `json:"files" jsonschema:"description=Files to write"`
}

type ListFilesArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list (default the sandbox root)"`
}

type RunCommandsArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command"`
}

type RunPythonArgs struct {
	Code string `json:"code" jsonschema:"description=Python source code"`
}

func formatRun(res *sandbox.Result) string {
	out := res.Output
	if res.Truncated {
		out += "\n[output truncated]"
	}
	if res.ExitCode != 0 {
		return fmt.Sprintf("exit code %d\n%s", res.ExitCode, out)
	}
	if strings.TrimSpace(out) == "" {
		return "(no output)"
	}
	return out
}

// sandboxTool adapts a typed handler to agentruntime.Tool.
type sandboxTool[T any] struct {
	name        string
	description string
	run         func(ctx context.Context, in T) string
}

func (t *sandboxTool[T]) Name() string {
	return t.name
}

func (t *sandboxTool[T]) Description() string {
	return t.description
}

func (t *sandboxTool[T]) Parameters() map[string]any {
	return agentruntime.GenerateSchema[T]()
}

func (t *sandboxTool[T]) Execute(ctx context.Context, args map[string]any) (string, error) {
	in, err := agentruntime.DecodeArgs[T](args)
	if err != nil {
		return "", agentruntime.NewRetryableError(err)
	}
	return t.run(ctx, in), nil
}
