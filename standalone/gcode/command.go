// Package gcode parses G-code lines and turns them into moves on a Machine.
package gcode

// Command is one parsed G-code line
type Command struct {
	Type       byte             // 'G', 'M', 'T', or 0 for a comment-only line
	Number     int              // command number, 1 for G1
	Line       int              // N word, -1 when absent
	Parameters map[byte]float64 // parameter words (X, Y, F, S, ...)
	Comment    string
}

// HasParameter reports whether the parameter word is present
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter returns the parameter value, or def when absent
func (cmd *Command) GetParameter(param byte, def float64) float64 {
	if v, ok := cmd.Parameters[param]; ok {
		return v
	}
	return def
}
