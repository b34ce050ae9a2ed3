package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatError(t *testing.T) {
	out := FormatError(ErrorOptions{
		Context:      "unknown entity",
		Problem:      "Pst",
		Details:      []string{"first", "second"},
		Suggestions:  []string{"Post", "Pet"},
		HelpCommands: []string{"List entity types: ormkit check"},
		NoColor:      true,
	})

	assert.Equal(t, "❌ UNKNOWN ENTITY: Pst\n"+
		"\n   first\n   second\n"+
		"\n   Did you mean: Post, Pet?\n"+
		"\n   → List entity types: ormkit check\n", out)
}

func TestFormatError_Levels(t *testing.T) {
	assert.Contains(t, Warning("careful", true), "⚠️ careful")
	assert.Contains(t, FormatError(ErrorOptions{Level: ErrorLevelInfo, Problem: "fyi", NoColor: true}), "ℹ️ fyi")
}

func TestCannedMessages(t *testing.T) {
	unknown := UnknownEntityError("Usr", []string{"User"}, true)
	assert.Contains(t, unknown, "UNKNOWN ENTITY: Usr")
	assert.Contains(t, unknown, "Did you mean: User?")
	assert.Contains(t, unknown, "ormkit check")

	defs := DefinitionErrors([]error{errors.New("Post: bad"), errors.New("User: worse")}, true)
	assert.Contains(t, defs, "2 entity definition error(s)")
	assert.Contains(t, defs, "   Post: bad\n")
	assert.Contains(t, defs, "   User: worse\n")

	assert.Contains(t, ConfigError("no database", true), "CONFIGURATION ERROR: no database")
}

func TestWriteSuccess(t *testing.T) {
	var buf bytes.Buffer
	WriteSuccess(&buf, "3 entity types valid", true)
	assert.Equal(t, "✓ 3 entity types valid\n", buf.String())

	buf.Reset()
	WriteError(&buf, ErrorOptions{Problem: "boom", NoColor: true})
	assert.Equal(t, "❌ boom\n", buf.String())
}
