// Package command parses the reviewer's free-text responses into structured
// commands. Parsing is pure: no lookups, no side effects, same output for the
// same input.
package command

import "strings"

// Type classifies a parsed reviewer response.
type Type string

const (
	TypeApprove Type = "approve"
	TypeEdit    Type = "edit"
	TypeIgnore  Type = "ignore"
	TypeUnknown Type = "unknown"
)

// Command is the structured form of one reviewer message. RawMessage always
// carries the original text unmodified, for logging and auditing.
type Command struct {
	Type             Type
	EditInstructions string
	RawMessage       string
}

var approveTokens = []string{"1", "approve", "send", "yes", "ok"}

var ignoreTokens = []string{"3", "ignore", "skip", "no"}

var editTokens = []string{"2", "edit"}

// Parse classifies a reviewer message. Matching is done on the trimmed,
// lowercased text; edit instructions are the trimmed remainder after the edit
// token. An edit token with no remainder is not a valid edit and falls
// through to unknown, as does empty input.
func Parse(message string) Command {
	normalized := strings.ToLower(strings.TrimSpace(message))

	for _, token := range approveTokens {
		if normalized == token {
			return Command{Type: TypeApprove, RawMessage: message}
		}
	}

	for _, token := range editTokens {
		rest, found := strings.CutPrefix(normalized, token)
		if !found || rest == "" {
			continue
		}

		// The token must be followed by whitespace, so "2x" or "editable"
		// never count as edit commands. Any whitespace separates, including
		// the newlines multi-line texts arrive with.
		trimmed := strings.TrimLeft(rest, " \t\r\n")
		if trimmed == rest || trimmed == "" {
			continue
		}

		return Command{
			Type:             TypeEdit,
			EditInstructions: strings.TrimSpace(trimmed),
			RawMessage:       message,
		}
	}

	for _, token := range ignoreTokens {
		if normalized == token {
			return Command{Type: TypeIgnore, RawMessage: message}
		}
	}

	return Command{Type: TypeUnknown, RawMessage: message}
}

// IsValid reports whether the message parses to something other than unknown.
func IsValid(message string) bool {
	return Parse(message).Type != TypeUnknown
}

// HelpText returns the usage summary sent to the reviewer after an
// unrecognized response.
func HelpText() string {
	return "Commands:\n" +
		"1 or 'send' - Send the draft reply\n" +
		"2 <instructions> - Edit reply (e.g., '2 make it more casual')\n" +
		"3 or 'ignore' - Don't reply to this email"
}
