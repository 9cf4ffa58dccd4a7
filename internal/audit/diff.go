// Package audit records action runs and object changes in SQL tables.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Canonical renders v as indented JSON with sorted keys so diffs are
// stable. nil renders as the empty string.
func Canonical(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return string(raw)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	// encoding/json sorts map keys.
	_ = enc.Encode(generic)
	return strings.TrimRight(buf.String(), "\n")
}

// Diff returns a unified diff of two values and the number of added and
// removed key lines.
func Diff(before, after any) (unified string, added, removed int) {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(Canonical(before) + "\n"),
		B:        difflib.SplitLines(Canonical(after) + "\n"),
		FromFile: "before",
		ToFile:   "after",
		Context:  3,
	}
	unified, _ = difflib.GetUnifiedDiffString(d)
	sc := bufio.NewScanner(strings.NewReader(unified))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") || !strings.Contains(line, "\":") {
			continue
		}
		switch line[0] {
		case '+':
			added++
		case '-':
			removed++
		}
	}
	return unified, added, removed
}
