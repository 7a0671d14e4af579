// Package chat implements the chat-command subsystem: the tokenizer for
// prefixed command lines, the static command table, the built-in
// commands, and Lua-scripted command loading.
package chat

import "strings"

// DefaultPrefix is the command prefix character used when none is
// configured.
const DefaultPrefix = '/'

// Invocation is a tokenized command line.
type Invocation struct {
	// Name is the command name (first token, case-sensitive).
	Name string
	// Args are the positional arguments after the name.
	Args []string
}

// Parse tokenizes a chat message. It reports ok=false when text does not
// begin with the prefix character (the message is not a command).
//
// Tokenization rules: a double quote toggles in-quotes mode and is
// dropped; outside quotes an unescaped space ends the current argument;
// a backslash is dropped and the following character taken literally,
// inside or outside quotes. An unterminated quote is not an error: the
// remainder of the input stays inside the current argument.
func Parse(prefix rune, text string) (Invocation, bool) {
	rest, found := strings.CutPrefix(text, string(prefix))
	if !found {
		return Invocation{}, false
	}

	var tokens []string
	var current strings.Builder
	started := false
	inQuotes := false
	escaped := false

	for _, c := range rest {
		switch {
		case escaped:
			current.WriteRune(c)
			started = true
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuotes = !inQuotes
			started = true
		case c == ' ' && !inQuotes:
			if started {
				tokens = append(tokens, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(c)
			started = true
		}
	}
	if started {
		tokens = append(tokens, current.String())
	}

	if len(tokens) == 0 || tokens[0] == "" {
		return Invocation{}, false
	}
	return Invocation{Name: tokens[0], Args: tokens[1:]}, true
}
