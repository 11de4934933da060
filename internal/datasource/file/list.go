package file

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ReadKeys reads a list of storage keys, one per line. Blank lines and lines
// starting with '#' are skipped; a key listed twice is returned once, at its
// first position.
func ReadKeys(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKeys(f)
}

// ParseKeys is ReadKeys over an arbitrary reader.
func ParseKeys(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
