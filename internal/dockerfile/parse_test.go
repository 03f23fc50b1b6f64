package dockerfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Simple(t *testing.T) {
	content := []byte("FROM python:3.10\nWORKDIR /app\nCMD [\"python\"]\n")
	instructions := Parse(content)

	require.Len(t, instructions, 3)
	assert.Equal(t, Instruction{Cmd: "FROM", Args: "python:3.10", Line: 1}, instructions[0])
	assert.Equal(t, Instruction{Cmd: "WORKDIR", Args: "/app", Line: 2}, instructions[1])
	assert.Equal(t, Instruction{Cmd: "CMD", Args: "[\"python\"]", Line: 3}, instructions[2])
}

func TestParse_SkipsBlanksAndComments(t *testing.T) {
	content := []byte("# build recipe\n\nFROM python:3.10\n\n# launch\nCMD [\"python\"]\n")
	instructions := Parse(content)

	require.Len(t, instructions, 2)
	assert.Equal(t, "FROM", instructions[0].Cmd)
	assert.Equal(t, 3, instructions[0].Line)
	assert.Equal(t, "CMD", instructions[1].Cmd)
	assert.Equal(t, 6, instructions[1].Line)
}

func TestParse_JoinsContinuations(t *testing.T) {
	content := []byte(`FROM python:3.10
RUN apt-get update && apt-get install -y --no-install-recommends \
    ffmpeg \
    && rm -rf /var/lib/apt/lists/*
USER user
`)
	instructions := Parse(content)

	require.Len(t, instructions, 3)
	run := instructions[1]
	assert.Equal(t, "RUN", run.Cmd)
	assert.Equal(t, 2, run.Line)
	assert.Equal(t,
		"apt-get update && apt-get install -y --no-install-recommends ffmpeg && rm -rf /var/lib/apt/lists/*",
		run.Args)
	assert.Equal(t, 5, instructions[2].Line)
}

func TestParse_CommentInsideContinuation(t *testing.T) {
	content := []byte(`RUN apt-get update \
    # index refresh above, install below
    && apt-get install -y curl
`)
	instructions := Parse(content)

	require.Len(t, instructions, 1)
	assert.Equal(t, "apt-get update && apt-get install -y curl", instructions[0].Args)
}

func TestParse_ContinuationAtEOF(t *testing.T) {
	content := []byte("RUN echo one \\")
	instructions := Parse(content)

	require.Len(t, instructions, 1)
	assert.Equal(t, "echo one", instructions[0].Args)
}

func TestParse_UppercasesInstruction(t *testing.T) {
	instructions := Parse([]byte("from python:3.10\nrun echo hi\n"))

	require.Len(t, instructions, 2)
	assert.Equal(t, "FROM", instructions[0].Cmd)
	assert.Equal(t, "RUN", instructions[1].Cmd)
}

func TestParse_CollapsesWhitespace(t *testing.T) {
	instructions := Parse([]byte("COPY   --chown=user\t. \t /app\n"))

	require.Len(t, instructions, 1)
	assert.Equal(t, "--chown=user . /app", instructions[0].Args)
}

func TestParse_NoArgs(t *testing.T) {
	instructions := Parse([]byte("FROM\n"))

	require.Len(t, instructions, 1)
	assert.Equal(t, "FROM", instructions[0].Cmd)
	assert.Empty(t, instructions[0].Args)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(nil))
	assert.Empty(t, Parse([]byte("\n\n# nothing here\n")))
}
