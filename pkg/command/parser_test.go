package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_Approve(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "numeric token", message: "1"},
		{name: "send", message: "send"},
		{name: "approve", message: "approve"},
		{name: "yes", message: "yes"},
		{name: "ok", message: "ok"},
		{name: "uppercase", message: "SEND"},
		{name: "mixed case", message: "Yes"},
		{name: "surrounding whitespace", message: "  1  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.message)

			assert.Equal(t, TypeApprove, result.Type)
			assert.Empty(t, result.EditInstructions)
			assert.Equal(t, tt.message, result.RawMessage)
		})
	}
}

func TestParse_Edit(t *testing.T) {
	tests := []struct {
		name         string
		message      string
		instructions string
	}{
		{
			name:         "numeric token with instructions",
			message:      "2 make it more casual",
			instructions: "make it more casual",
		},
		{
			name:         "edit keyword",
			message:      "edit reject meeting with health reason",
			instructions: "reject meeting with health reason",
		},
		{
			name:         "instructions are matched lowercased",
			message:      "2 say I'm busy and suggest next week instead",
			instructions: "say i'm busy and suggest next week instead",
		},
		{
			name:         "uppercase keyword",
			message:      "EDIT make it shorter",
			instructions: "make it shorter",
		},
		{
			name:         "extra whitespace",
			message:      "2   make it more formal  ",
			instructions: "make it more formal",
		},
		{
			name:         "tab separator",
			message:      "2\tmake it shorter",
			instructions: "make it shorter",
		},
		{
			name:         "newline separator",
			message:      "2\nmake it shorter",
			instructions: "make it shorter",
		},
		{
			name:         "crlf separator",
			message:      "2\r\nmake it shorter",
			instructions: "make it shorter",
		},
		{
			name:         "edit keyword with newline",
			message:      "edit\nbe brief",
			instructions: "be brief",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.message)

			assert.Equal(t, TypeEdit, result.Type)
			assert.Equal(t, tt.instructions, result.EditInstructions)
		})
	}
}

func TestParse_Ignore(t *testing.T) {
	for _, message := range []string{"3", "ignore", "skip", "no", "IGNORE", "Skip"} {
		result := Parse(message)

		assert.Equal(t, TypeIgnore, result.Type, "message %q", message)
		assert.Empty(t, result.EditInstructions)
	}
}

func TestParse_Unknown(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "random text", message: "hello world"},
		{name: "unassigned number", message: "4"},
		{name: "empty input", message: ""},
		{name: "edit token without instructions", message: "2"},
		{name: "edit keyword without instructions", message: "edit"},
		{name: "edit token glued to text", message: "2x"},
		{name: "word starting with edit", message: "editable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.message)

			assert.Equal(t, TypeUnknown, result.Type)
			assert.Empty(t, result.EditInstructions)
		})
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"1", "send", "2 make it casual", "edit be more formal", "3", "ignore"}
	for _, message := range valid {
		assert.True(t, IsValid(message), "message %q", message)
	}

	invalid := []string{"hello", "4", "", "2"}
	for _, message := range invalid {
		assert.False(t, IsValid(message), "message %q", message)
	}
}

// Validity must agree with Parse for any input.
func TestIsValid_MatchesParse(t *testing.T) {
	inputs := []string{"1", "2 shorter", "3", "", "nope", "  ok ", "skip", "2", "edit  x"}
	for _, message := range inputs {
		parsed := Parse(message)
		assert.Equal(t, parsed.Type != TypeUnknown, IsValid(message), "message %q", message)
	}
}

func TestHelpText(t *testing.T) {
	help := HelpText()

	for _, fragment := range []string{"1", "2", "3", "send", "edit", "ignore"} {
		assert.Contains(t, help, fragment)
	}
}

func TestParse_RawMessagePreserved(t *testing.T) {
	original := "2 Make It More Casual"
	result := Parse(original)
	assert.Equal(t, original, result.RawMessage)

	original = "  1  "
	result = Parse(original)
	assert.Equal(t, original, result.RawMessage)
}
