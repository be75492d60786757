package mailer

import (
	"bytes"
	"fmt"

	"go.yaml.in/yaml/v3"
)

// frontmatter is the YAML header a template file may start with.
type frontmatter struct {
	Subject string `yaml:"subject"`
}

// splitFrontmatter separates a leading "---" YAML block from the body.
// The block ends at the next line that is exactly "---".
// Content without the opening delimiter is all body.
func splitFrontmatter(content []byte) (frontmatter, []byte, error) {
	var fm frontmatter
	delim := []byte("---")
	if !bytes.HasPrefix(content, delim) {
		return fm, content, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delim), "\r\n")
	head, body, ok := cutAtDelimLine(rest, delim)
	if !ok {
		return fm, nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, &fm); err != nil {
			return fm, nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}
	return fm, body, nil
}

// cutAtDelimLine splits b around the first line equal to delim.
func cutAtDelimLine(b, delim []byte) (before, after []byte, found bool) {
	off := 0
	for off <= len(b) {
		line, next := b[off:], len(b)
		if i := bytes.IndexByte(b[off:], '\n'); i >= 0 {
			line, next = b[off:off+i], off+i+1
		}
		if bytes.Equal(bytes.TrimRight(line, "\r \t"), delim) {
			return b[:off], b[next:], true
		}
		if next == len(b) {
			break
		}
		off = next
	}
	return nil, nil, false
}
