package agentloop

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// BuildEnvironmentContext generates the environment block of the system
// prompt. File paths given to tools are relative to the workspace root.
func BuildEnvironmentContext(root, model string) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Workspace root: %s\n", root)
	sb.WriteString("Paths passed to tools are relative to the workspace root.\n")
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}
