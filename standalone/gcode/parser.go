package gcode

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrSyntax   = errors.New("gcode syntax error")
	ErrChecksum = errors.New("gcode checksum mismatch")
)

// Parser turns text lines into commands
type Parser struct {
	// LastLine is the most recent N word seen
	LastLine int
}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{LastLine: -1}
}

// ParseLine parses a single line. Empty lines yield a nil command.
// A trailing "*NN" checksum is verified against the XOR of the bytes
// before it.
func (p *Parser) ParseLine(line string) (*Command, error) {
	line, comment := splitComment(line)
	line, err := checkChecksum(line)
	if err != nil {
		return nil, err
	}

	cmd := &Command{Line: -1, Parameters: make(map[byte]float64), Comment: comment}
	words := 0
	for i := 0; i < len(line); {
		c := line[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			i++
			continue
		}
		if !isLetter(c) {
			return nil, fmt.Errorf("%w: unexpected %q in %q", ErrSyntax, c, line)
		}
		letter := toUpper(c)
		i++
		start := i
		for i < len(line) && isNumberByte(line[i]) {
			i++
		}
		text := line[start:i]
		words++

		switch {
		case letter == 'N' && cmd.Type == 0:
			n, err := strconv.Atoi(text)
			if err != nil {
				return nil, fmt.Errorf("%w: line number %q", ErrSyntax, text)
			}
			cmd.Line = n
			p.LastLine = n
		case (letter == 'G' || letter == 'M' || letter == 'T') && cmd.Type == 0:
			n, err := parseCode(text)
			if err != nil {
				return nil, fmt.Errorf("%w: %c%s", ErrSyntax, letter, text)
			}
			cmd.Type = letter
			cmd.Number = n
		default:
			if text == "" {
				// bare flag word such as "G28 X"
				cmd.Parameters[letter] = 0
				continue
			}
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %c%s", ErrSyntax, letter, text)
			}
			cmd.Parameters[letter] = v
		}
	}

	if words == 0 && comment == "" {
		return nil, nil
	}
	return cmd, nil
}

// parseCode accepts "1", "01" and the "1.0" some generators emit
func parseCode(text string) (int, error) {
	if n, err := strconv.Atoi(text); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != float64(int(f)) {
		return 0, ErrSyntax
	}
	return int(f), nil
}

func splitComment(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ';':
			return line[:i], line[i:]
		case '(':
			end := i + 1
			for end < len(line) && line[end] != ')' {
				end++
			}
			if end < len(line) {
				end++
			}
			rest, more := splitComment(line[end:])
			return line[:i] + " " + rest, line[i:end] + more
		}
	}
	return line, ""
}

func checkChecksum(line string) (string, error) {
	star := -1
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '*' {
			star = i
			break
		}
	}
	if star < 0 {
		return line, nil
	}
	want, err := strconv.Atoi(trimSpace(line[star+1:]))
	if err != nil {
		return "", fmt.Errorf("%w: bad checksum %q", ErrSyntax, line[star+1:])
	}
	sum := 0
	for i := 0; i < star; i++ {
		sum ^= int(line[i])
	}
	if sum != want {
		return "", fmt.Errorf("%w: got %d, want %d", ErrChecksum, want, sum)
	}
	return line[:star], nil
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t' || s[len(s)-1] == '\r' || s[len(s)-1] == '\n') {
		s = s[:len(s)-1]
	}
	return s
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
