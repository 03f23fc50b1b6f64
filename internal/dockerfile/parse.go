package dockerfile

import (
	"strings"
)

// Instruction is one logical Dockerfile instruction with continuation
// lines already joined. Line is the 1-based line number of the
// instruction's first physical line, so findings can point into the
// file the user is looking at.
type Instruction struct {
	// Cmd is the instruction keyword, uppercased (FROM, RUN, COPY...).
	Cmd string `json:"cmd"`

	// Args is the instruction's argument text with continuations
	// joined and runs of whitespace collapsed.
	Args string `json:"args"`

	// Line is the 1-based line number where the instruction starts.
	Line int `json:"line"`
}

// Parse splits Dockerfile content into logical instructions.
//
// Handling follows the Dockerfile line grammar:
//   - blank lines are skipped,
//   - full-line # comments are skipped, including inside a
//     continuation (Docker strips them before joining),
//   - a trailing backslash joins the next physical line,
//   - the first word of each logical line is the instruction keyword.
//
// Parse never fails: content that is not an instruction still becomes
// an Instruction and the linter reports it as unknown.
func Parse(content []byte) []Instruction {
	var instructions []Instruction

	lines := strings.Split(string(content), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		startLine := i + 1
		var parts []string
		for {
			continued := strings.HasSuffix(line, "\\")
			parts = append(parts, strings.TrimSpace(strings.TrimSuffix(line, "\\")))
			if !continued || i+1 >= len(lines) {
				break
			}

			// Advance through the continuation, dropping blank lines
			// and comments the way Docker does.
			i++
			line = strings.TrimSpace(lines[i])
			for (line == "" || strings.HasPrefix(line, "#")) && i+1 < len(lines) {
				i++
				line = strings.TrimSpace(lines[i])
			}
			if line == "" || strings.HasPrefix(line, "#") {
				break
			}
		}

		logical := strings.Join(parts, " ")
		fields := strings.SplitN(logical, " ", 2)
		instruction := Instruction{
			Cmd:  strings.ToUpper(fields[0]),
			Line: startLine,
		}
		if len(fields) > 1 {
			instruction.Args = collapseSpaces(fields[1])
		}
		instructions = append(instructions, instruction)
	}

	return instructions
}

// collapseSpaces folds runs of spaces and tabs into single spaces so
// joined continuations compare cleanly.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
