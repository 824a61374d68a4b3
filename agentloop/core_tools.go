package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/martinemde/vox/workspace"
)

// Built-in tool names. The model addresses tools by these exact names.
const (
	ToolNpmInit                = "npmInit"
	ToolListWorkingDirectory   = "listWorkingDirectory"
	ToolNpmInstallDependencies = "npmInstallDependencies"
	ToolGetCurrentWeather      = "getCurrentWeather"
	ToolGetLocation            = "getLocation"
	ToolCreateFile             = "createFile"
	ToolReadFile               = "readFile"
	ToolUpdateFile             = "updateFile"
	ToolDeleteFile             = "deleteFile"
	ToolCreateFolder           = "createFolder"
	ToolDeleteFolder           = "deleteFolder"
)

// DefaultCommandTimeout bounds npm runs when no timeout is configured.
const DefaultCommandTimeout = 5 * time.Minute

type noArgs struct{}

type filePathArgs struct {
	FilePath string `json:"filePath" validate:"required" jsonschema_description:"Path of the file relative to the workspace root"`
}

type fileContentArgs struct {
	FilePath string `json:"filePath" validate:"required" jsonschema_description:"Path of the file relative to the workspace root"`
	Content  string `json:"content" jsonschema_description:"Full text content of the file"`
}

type folderPathArgs struct {
	FolderPath string `json:"folderPath" validate:"required" jsonschema_description:"Path of the folder relative to the workspace root"`
}

// RegisterWorkspaceTools registers the npm and filesystem tools bound to sb.
// commandTimeout bounds each npm run; zero selects DefaultCommandTimeout.
func RegisterWorkspaceTools(reg *ToolRegistry, sb *workspace.Sandbox, commandTimeout time.Duration) error {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}

	tools := []RegisteredTool{
		NewTool(ToolNpmInit,
			"Initialize a new npm project in the workspace root directory using 'npm init -y'",
			func(ctx context.Context, _ noArgs) (string, error) {
				return runNpm(ctx, sb, commandTimeout, "npm init", "init", "-y")
			}),
		NewTool(ToolListWorkingDirectory,
			"List the contents of the workspace root directory",
			func(_ context.Context, _ noArgs) (string, error) {
				names, err := sb.List(".")
				if err != nil {
					return "", err
				}
				out, err := json.Marshal(names)
				if err != nil {
					return "", fmt.Errorf("encode listing: %w", err)
				}
				return string(out), nil
			}),
		NewTool(ToolNpmInstallDependencies,
			"Run 'npm install' in the workspace root to install dependencies",
			func(ctx context.Context, _ noArgs) (string, error) {
				return runNpm(ctx, sb, commandTimeout, "npm install", "install")
			}),
		NewTool(ToolCreateFile,
			"Create a new file with specified content",
			func(_ context.Context, args fileContentArgs) (string, error) {
				path, err := sb.CreateFile(args.FilePath, args.Content)
				if err != nil {
					return "", err
				}
				return "File created at " + path, nil
			}),
		NewTool(ToolReadFile,
			"Read the content of a specified file",
			func(_ context.Context, args filePathArgs) (string, error) {
				return sb.ReadFile(args.FilePath)
			}),
		NewTool(ToolUpdateFile,
			"Update the content of a specified file",
			func(_ context.Context, args fileContentArgs) (string, error) {
				path, err := sb.UpdateFile(args.FilePath, args.Content)
				if err != nil {
					return "", err
				}
				return "File updated at " + path, nil
			}),
		NewTool(ToolDeleteFile,
			"Delete a specified file",
			func(_ context.Context, args filePathArgs) (string, error) {
				path, err := sb.DeleteFile(args.FilePath)
				if err != nil {
					return "", err
				}
				return "File deleted at " + path, nil
			}),
		NewTool(ToolCreateFolder,
			"Create a new folder",
			func(_ context.Context, args folderPathArgs) (string, error) {
				path, err := sb.CreateFolder(args.FolderPath)
				if err != nil {
					return "", err
				}
				return "Folder created at " + path, nil
			}),
		NewTool(ToolDeleteFolder,
			"Delete a specified folder",
			func(_ context.Context, args folderPathArgs) (string, error) {
				path, err := sb.DeleteFolder(args.FolderPath)
				if err != nil {
					return "", err
				}
				return "Folder deleted at " + path, nil
			}),
	}

	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func runNpm(ctx context.Context, sb *workspace.Sandbox, timeout time.Duration, label string, args ...string) (string, error) {
	result, err := sb.Exec(ctx, timeout, "npm", args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", label, err)
	}
	return result.Summary(label), nil
}
