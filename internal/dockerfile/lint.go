package dockerfile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Severity classifies a lint finding. Only errors fail a lint run;
// warnings are advisory.
type Severity string

const (
	// SeverityError marks findings that make the Dockerfile wrong.
	SeverityError Severity = "error"

	// SeverityWarning marks best-practice deviations.
	SeverityWarning Severity = "warning"
)

// Finding is one lint result anchored to a Dockerfile line.
type Finding struct {
	// Rule is the stable identifier of the check, e.g. "from-tag".
	Rule string `json:"rule"`

	// Severity is error or warning.
	Severity Severity `json:"severity"`

	// Line is the 1-based line the finding points at (0 for
	// whole-file findings).
	Line int `json:"line,omitempty"`

	// Message describes what is wrong.
	Message string `json:"message"`
}

// validInstructions is the Dockerfile instruction vocabulary; anything
// else is reported as unknown.
var validInstructions = map[string]bool{
	"FROM": true, "RUN": true, "CMD": true, "LABEL": true, "EXPOSE": true,
	"ENV": true, "ADD": true, "COPY": true, "ENTRYPOINT": true, "VOLUME": true,
	"USER": true, "WORKDIR": true, "ARG": true, "ONBUILD": true,
	"STOPSIGNAL": true, "HEALTHCHECK": true, "SHELL": true, "MAINTAINER": true,
}

var exposePortRegex = regexp.MustCompile(`^\d+(/tcp|/udp)?$`)

// Lint runs the mechanical checks over parsed instructions and returns
// the findings in file order. These checks are intrinsic to any
// Dockerfile; checks that compare the file against a variant's runtime
// contract belong to the policy engine.
func Lint(instructions []Instruction) []Finding {
	var findings []Finding

	if len(instructions) == 0 {
		return []Finding{{
			Rule:     "file-empty",
			Severity: SeverityError,
			Message:  "Dockerfile contains no instructions",
		}}
	}

	findings = append(findings, checkStructure(instructions)...)

	for _, inst := range instructions {
		switch inst.Cmd {
		case "FROM":
			findings = append(findings, checkFrom(inst)...)
		case "RUN":
			findings = append(findings, checkRun(inst)...)
		case "COPY", "ADD":
			findings = append(findings, checkCopyAdd(inst)...)
		case "EXPOSE":
			findings = append(findings, checkExpose(inst)...)
		case "USER":
			findings = append(findings, checkUser(inst)...)
		case "WORKDIR":
			findings = append(findings, checkWorkdir(inst)...)
		case "CMD", "ENTRYPOINT":
			findings = append(findings, checkCmdEntrypoint(inst)...)
		default:
			if !validInstructions[inst.Cmd] {
				findings = append(findings, Finding{
					Rule:     "instruction-unknown",
					Severity: SeverityError,
					Line:     inst.Line,
					Message:  fmt.Sprintf("unknown instruction: %s", inst.Cmd),
				})
			}
		}
	}

	return findings
}

// HasErrors reports whether any finding carries error severity. Lint
// exit status is driven by this, not by warnings.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// checkStructure validates whole-file properties: the build must start
// with FROM (ARG may precede it for build parametrization), and CMD
// and ENTRYPOINT shadow earlier occurrences of themselves.
func checkStructure(instructions []Instruction) []Finding {
	var findings []Finding

	first := instructions[0]
	if first.Cmd != "FROM" && first.Cmd != "ARG" {
		findings = append(findings, Finding{
			Rule:     "from-first",
			Severity: SeverityError,
			Line:     first.Line,
			Message:  "Dockerfile must start with a FROM instruction",
		})
	}

	counts := map[string]int{}
	for _, inst := range instructions {
		counts[inst.Cmd]++
	}
	if counts["FROM"] == 0 {
		findings = append(findings, Finding{
			Rule:     "from-missing",
			Severity: SeverityError,
			Message:  "Dockerfile has no FROM instruction",
		})
	}
	for _, cmd := range []string{"CMD", "ENTRYPOINT"} {
		if counts[cmd] > 1 {
			findings = append(findings, Finding{
				Rule:     "duplicate-" + strings.ToLower(cmd),
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("multiple %s instructions: only the last one takes effect", cmd),
			})
		}
	}

	return findings
}

func checkFrom(inst Instruction) []Finding {
	if inst.Args == "" {
		return []Finding{{
			Rule:     "from-image",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  "FROM requires an image reference",
		}}
	}

	// The reference is the first field; an AS clause may follow.
	ref := strings.Fields(inst.Args)[0]
	lastComponent := ref
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		lastComponent = ref[i+1:]
	}
	if strings.HasSuffix(ref, ":latest") || !strings.Contains(lastComponent, ":") {
		return []Finding{{
			Rule:     "from-tag",
			Severity: SeverityWarning,
			Line:     inst.Line,
			Message:  fmt.Sprintf("base image %q floats on latest: pin a version tag for reproducible builds", ref),
		}}
	}
	return nil
}

func checkRun(inst Instruction) []Finding {
	var findings []Finding

	if strings.Contains(inst.Args, "apt-get install") {
		if !strings.Contains(inst.Args, "apt-get update") {
			findings = append(findings, Finding{
				Rule:     "apt-update-missing",
				Severity: SeverityWarning,
				Line:     inst.Line,
				Message:  "apt-get install without apt-get update in the same RUN uses a stale package index",
			})
		}
		if !strings.Contains(inst.Args, "rm -rf /var/lib/apt/lists/*") {
			findings = append(findings, Finding{
				Rule:     "apt-cleanup-missing",
				Severity: SeverityWarning,
				Line:     inst.Line,
				Message:  "apt-get install should clean /var/lib/apt/lists in the same RUN to keep the layer small",
			})
		}
	}

	return findings
}

func checkCopyAdd(inst Instruction) []Finding {
	var findings []Finding

	// Flags like --chown=user do not count as source or destination.
	var positional []string
	for _, field := range strings.Fields(inst.Args) {
		if !strings.HasPrefix(field, "--") {
			positional = append(positional, field)
		}
	}
	if len(positional) < 2 {
		return []Finding{{
			Rule:     "copy-arity",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  fmt.Sprintf("%s requires a source and a destination", inst.Cmd),
		}}
	}

	if inst.Cmd == "ADD" && !strings.Contains(inst.Args, "http") && !strings.Contains(positional[0], ".tar") {
		findings = append(findings, Finding{
			Rule:     "add-prefer-copy",
			Severity: SeverityWarning,
			Line:     inst.Line,
			Message:  "COPY is preferred over ADD for plain file copying",
		})
	}

	// COPY ignores the active USER: without --chown the files land
	// owned by root even after a USER switch.
	if inst.Cmd == "COPY" && !strings.Contains(inst.Args, "--chown=") {
		findings = append(findings, Finding{
			Rule:     "copy-chown",
			Severity: SeverityWarning,
			Line:     inst.Line,
			Message:  "COPY without --chown leaves the files owned by root",
		})
	}

	return findings
}

func checkExpose(inst Instruction) []Finding {
	fields := strings.Fields(inst.Args)
	if len(fields) == 0 {
		return []Finding{{
			Rule:     "expose-port",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  "EXPOSE requires at least one port",
		}}
	}

	var findings []Finding
	for _, field := range fields {
		if !exposePortRegex.MatchString(field) {
			findings = append(findings, Finding{
				Rule:     "expose-port",
				Severity: SeverityError,
				Line:     inst.Line,
				Message:  fmt.Sprintf("invalid port format: %s", field),
			})
			continue
		}
		number, _ := strconv.Atoi(strings.SplitN(field, "/", 2)[0])
		if number < 1 || number > 65535 {
			findings = append(findings, Finding{
				Rule:     "expose-port",
				Severity: SeverityError,
				Line:     inst.Line,
				Message:  fmt.Sprintf("port %d out of range (1-65535)", number),
			})
		}
	}
	return findings
}

func checkUser(inst Instruction) []Finding {
	if inst.Args == "" {
		return []Finding{{
			Rule:     "user-name",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  "USER requires a user name or uid",
		}}
	}

	user := strings.Fields(inst.Args)[0]
	if user == "root" || user == "0" || strings.HasPrefix(user, "root:") || strings.HasPrefix(user, "0:") {
		return []Finding{{
			Rule:     "user-root",
			Severity: SeverityWarning,
			Line:     inst.Line,
			Message:  "switching to root is a security risk: create and use a non-root user",
		}}
	}
	return nil
}

func checkWorkdir(inst Instruction) []Finding {
	if inst.Args == "" {
		return []Finding{{
			Rule:     "workdir-path",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  "WORKDIR requires a directory path",
		}}
	}
	if !strings.HasPrefix(inst.Args, "/") && !strings.HasPrefix(inst.Args, "$") {
		return []Finding{{
			Rule:     "workdir-absolute",
			Severity: SeverityWarning,
			Line:     inst.Line,
			Message:  "WORKDIR should use an absolute path",
		}}
	}
	return nil
}

// checkCmdEntrypoint validates the launch instruction, including the
// exec-form pitfalls: a malformed JSON array, and environment variable
// references that can never expand because exec form bypasses the
// shell.
func checkCmdEntrypoint(inst Instruction) []Finding {
	if inst.Args == "" {
		return []Finding{{
			Rule:     "cmd-arity",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  fmt.Sprintf("%s requires a command", inst.Cmd),
		}}
	}

	if !strings.HasPrefix(strings.TrimSpace(inst.Args), "[") {
		return nil
	}

	var argv []string
	if err := json.Unmarshal([]byte(inst.Args), &argv); err != nil {
		return []Finding{{
			Rule:     "cmd-exec-form",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  fmt.Sprintf("%s exec form is not a valid JSON string array", inst.Cmd),
		}}
	}
	if len(argv) == 0 {
		return []Finding{{
			Rule:     "cmd-arity",
			Severity: SeverityError,
			Line:     inst.Line,
			Message:  fmt.Sprintf("%s exec form is empty", inst.Cmd),
		}}
	}

	// $VAR in exec form stays a literal dollar string unless the first
	// element is itself a shell.
	if !isShell(argv[0]) {
		for _, arg := range argv {
			if strings.Contains(arg, "$") {
				return []Finding{{
					Rule:     "cmd-env-shell",
					Severity: SeverityError,
					Line:     inst.Line,
					Message:  fmt.Sprintf("%s exec form cannot expand %q: wrap the command in sh -c", inst.Cmd, arg),
				}}
			}
		}
	}
	return nil
}

// isShell reports whether an argv head is a shell that will expand
// variables in its -c string.
func isShell(arg string) bool {
	switch arg {
	case "sh", "bash", "/bin/sh", "/bin/bash", "/usr/bin/sh", "/usr/bin/bash":
		return true
	default:
		return false
	}
}
