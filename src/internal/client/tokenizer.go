package client

import "github.com/pkg/errors"

// Tokenize splits a command line into whitespace-separated tokens,
// honoring shell-style double-quoting with `\"`/`\\` escapes, per spec.md
// §9's explicit redesign instruction to replace the source's ad-hoc
// strtok parsing. Embedded NUL or newline bytes are rejected.
//
// Grounded on spec.md §6/§9; for the quoting dialect itself, the inverse
// operation (escaping, not un-escaping) is shown by the client-side
// quote() helper in
// other_examples/82c68ffd_usedbytes-gompd__mpd-client.go.go.
func Tokenize(line string) ([]string, error) {
	var tokens []string
	var cur []byte
	inQuotes := false
	haveToken := false

	flush := func() {
		if haveToken {
			tokens = append(tokens, string(cur))
		}
		cur = cur[:0]
		haveToken = false
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == 0 || c == '\n':
			return nil, errors.New("client: embedded NUL or newline in command line")
		case inQuotes:
			switch c {
			case '"':
				inQuotes = false
			case '\\':
				if i+1 >= len(line) {
					return nil, errors.New("client: unterminated escape")
				}
				i++
				cur = append(cur, line[i])
			default:
				cur = append(cur, c)
			}
		case c == '"':
			inQuotes = true
			haveToken = true
		case c == ' ' || c == '\t':
			flush()
		case c == '\\':
			if i+1 >= len(line) {
				return nil, errors.New("client: unterminated escape")
			}
			i++
			cur = append(cur, line[i])
			haveToken = true
		default:
			cur = append(cur, c)
			haveToken = true
		}
	}
	if inQuotes {
		return nil, errors.New("client: unterminated quote")
	}
	flush()
	return tokens, nil
}
