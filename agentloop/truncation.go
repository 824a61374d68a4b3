package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode picks which part of an oversized output survives.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// outputLimit bounds what one tool may send back to the model. Lines are
// counted after the character cut; zero means no line limit.
type outputLimit struct {
	chars int
	mode  TruncationMode
	lines int
}

var (
	readLimit   = outputLimit{chars: 50000, mode: TruncateHeadTail}
	npmLimit    = outputLimit{chars: 30000, mode: TruncateHeadTail, lines: 256}
	ackLimit    = outputLimit{chars: 1000, mode: TruncateTail}
	lookupLimit = outputLimit{chars: 20000, mode: TruncateHeadTail}
)

var outputLimits = map[string]outputLimit{
	ToolReadFile:               readLimit,
	ToolNpmInit:                npmLimit,
	ToolNpmInstallDependencies: npmLimit,
	ToolListWorkingDirectory:   {chars: 20000, mode: TruncateTail},
	ToolCreateFile:             ackLimit,
	ToolUpdateFile:             ackLimit,
	ToolDeleteFile:             ackLimit,
	ToolCreateFolder:           ackLimit,
	ToolDeleteFolder:           ackLimit,
	ToolGetLocation:            {chars: 5000, mode: TruncateHeadTail},
	ToolGetCurrentWeather:      lookupLimit,
}

// fallbackLimit applies to tools registered by the host.
var fallbackLimit = outputLimit{chars: 30000, mode: TruncateHeadTail}

// TruncateOutput cuts output down to maxChars, leaving a marker that says
// how much went missing. TruncateTail keeps the end; any other mode keeps
// both ends.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	removed := len(output) - maxChars
	if removed <= 0 {
		return output
	}

	if mode == TruncateTail {
		marker := fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed)
		return marker + output[removed:]
	}

	half := maxChars / 2
	marker := fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
		"If you need specific parts, read a smaller file or run a narrower command.]\n\n", removed)
	return output[:half] + marker + output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output, maxLines in all.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	omitted := len(lines) - maxLines
	if omitted <= 0 {
		return output
	}

	head := maxLines / 2
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[head+omitted:], "\n")
}

// TruncateToolOutput applies the character limit for toolName and then its
// line limit. chars and lines override the built-in limits per tool name
// and may be nil.
func TruncateToolOutput(output, toolName string, chars, lines map[string]int) string {
	limit, ok := outputLimits[toolName]
	if !ok {
		limit = fallbackLimit
	}
	if n, ok := chars[toolName]; ok {
		limit.chars = n
	}
	if n, ok := lines[toolName]; ok {
		limit.lines = n
	}

	result := TruncateOutput(output, limit.chars, limit.mode)
	if limit.lines > 0 {
		result = TruncateLines(result, limit.lines)
	}
	return result
}
