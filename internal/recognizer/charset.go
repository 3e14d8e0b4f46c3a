package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// Charset is the recognizer output vocabulary.
type Charset struct {
	Tokens []string
	index  map[string]int
}

// NewCharset builds a Charset from tokens. Duplicates keep their first index.
func NewCharset(tokens []string) (*Charset, error) {
	if len(tokens) == 0 {
		return nil, errors.New("charset is empty")
	}
	idx := make(map[string]int, len(tokens))
	for i, t := range tokens {
		if _, ok := idx[t]; !ok {
			idx[t] = i
		}
	}
	return &Charset{Tokens: tokens, index: idx}, nil
}

// Size returns the number of tokens.
func (c *Charset) Size() int { return len(c.Tokens) }

// Token returns the token at i.
func (c *Charset) Token(i int) (string, bool) {
	if i < 0 || i >= len(c.Tokens) {
		return "", false
	}
	return c.Tokens[i], true
}

// Index returns the first index of token.
func (c *Charset) Index(token string) (int, bool) {
	i, ok := c.index[token]
	return i, ok
}

// LoadCharset reads a charset file. Each non-empty line is a token, except
// that a file consisting of a single line is split into its characters.
// A leading UTF-8 BOM is removed.
func LoadCharset(path string) (*Charset, error) {
	if path == "" {
		return nil, errors.New("charset path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: charset path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open charset: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lines []string
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading charset: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("charset is empty: %s", path)
	}

	if len(lines) == 1 && utf8.RuneCountInString(lines[0]) > 1 {
		runes := []rune(lines[0])
		tokens := make([]string, len(runes))
		for i, r := range runes {
			tokens[i] = string(r)
		}
		return NewCharset(tokens)
	}
	return NewCharset(lines)
}
