package progress

import (
	"fmt"
	"strconv"
	"strings"
)

const recordSep = ". "

// FormatRecord renders r as a segment line, including the trailing newline.
func FormatRecord(r Record) string {
	return strconv.FormatUint(r.Seq, 10) + recordSep + r.Email + "\n"
}

// CheckAddress reports whether email can be stored as a single record line.
func CheckAddress(email string) error {
	if strings.TrimSpace(email) == "" || strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, email)
	}
	return nil
}

// ParseRecord parses one segment line ("<seq>. <address>").
// The separator is the first ". "; the sequence number must be positive.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	num, email, ok := strings.Cut(line, recordSep)
	if !ok {
		return Record{}, fmt.Errorf("%w: missing %q separator in %q", ErrMalformedRecord, recordSep, line)
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(num), 10, 64)
	if err != nil || seq == 0 {
		return Record{}, fmt.Errorf("%w: bad sequence number in %q", ErrMalformedRecord, line)
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return Record{}, fmt.Errorf("%w: empty address in %q", ErrMalformedRecord, line)
	}
	return Record{Seq: seq, Email: email}, nil
}
