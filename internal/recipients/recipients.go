// Package recipients reads recipient id files: one user id per line.
package recipients

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// InputError reports an unreadable recipients file.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("recipients: %v", e.Err)
	}
	return fmt.Sprintf("recipients %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ReadFile parses the recipients file at path. See Parse.
func ReadFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	ids, err := Parse(f)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return ids, nil
}

// Parse reads newline-delimited ids from r.
//
// Each line is read the way Ruby's String#to_i reads it: leading
// whitespace, an optional sign, then as many digits as follow. Lines whose
// value is not a positive integer are dropped. The result is deduplicated
// and keeps first-seen order.
func Parse(r io.Reader) ([]int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	seen := map[int64]struct{}{}
	var out []int64
	for sc.Scan() {
		id, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLine(line string) (int64, bool) {
	s := strings.TrimLeft(line, " \t\r\n\v\f")
	if s == "" {
		return 0, false
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	end := 0
	for end < len(s) && (isDigit(s[end]) || (s[end] == '_' && end > 0 && end+1 < len(s) && isDigit(s[end+1]))) {
		end++
	}
	if end == 0 || neg {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s[:end], "_", ""), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
