package agentloop

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/martinemde/vox/unifiedllm"
)

// maxCycle is the longest repeating run of tool calls DetectLoop looks for.
const maxCycle = 3

// callSignature identifies a tool call by name and a hash of its compacted
// arguments, so whitespace differences do not hide a repeat.
func callSignature(call *unifiedllm.ToolCall) string {
	args := []byte(call.Arguments)
	var buf bytes.Buffer
	if json.Compact(&buf, args) == nil {
		args = buf.Bytes()
	}
	h := sha256.Sum256(args)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// recentSignatures returns the signatures of the last n tool calls in
// chronological order.
func recentSignatures(history []Turn, n int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < n; i-- {
		turn := history[i]
		if turn.Kind == TurnAssistant && turn.ToolCall != nil {
			sigs = append(sigs, callSignature(turn.ToolCall))
		}
	}
	slices.Reverse(sigs)
	return sigs
}

// DetectLoop reports whether the last window tool calls are one cycle of
// 1 to 3 calls repeated, and the length of that cycle. window must be a
// multiple of the cycle and hold at least two repetitions of it.
func DetectLoop(history []Turn, window int) (int, bool) {
	sigs := recentSignatures(history, window)
	if window <= 0 || len(sigs) < window {
		return 0, false
	}

	for cycle := 1; cycle <= maxCycle && cycle*2 <= window; cycle++ {
		if window%cycle != 0 {
			continue
		}
		repeats := true
		for i := cycle; i < window && repeats; i++ {
			repeats = sigs[i] == sigs[i%cycle]
		}
		if repeats {
			return cycle, true
		}
	}
	return 0, false
}
