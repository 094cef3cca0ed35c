package classify

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/flatrie/flatrie/pkg/lpm"
)

// loadPrefixList reads a plain list file, one "cidr label" pair per line
// (label defaults to the cidr itself), and returns the entries sorted by
// non-decreasing prefix length, ready for insertion. Empty lines and
// '#' comments are skipped.
func loadPrefixList[K lpm.Key[K]](path string, parsePrefix func(string) (K, int, error)) ([]prefixEntry[K], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening prefix list: %w", err)
	}
	defer f.Close()

	var entries []prefixEntry[K]
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key, length, err := parsePrefix(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		label := fields[0]
		if len(fields) > 1 {
			label = fields[1]
		}
		entries = append(entries, prefixEntry[K]{key: key, length: length, label: label})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].length < entries[j].length })
	return entries, nil
}

// joinSorted renders an aggregation result deterministically.
func joinSorted(labels map[string]struct{}) string {
	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
