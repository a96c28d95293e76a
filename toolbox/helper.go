package toolbox

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

func normalizeLineEndings(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// unifiedDiff renders the change between two versions of a file as a unified
// diff with the conventional ---/+++ header.
func unifiedDiff(originalContent, newContent, path string) string {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(originalContent, newContent, true)
	patches := dmp.PatchMake(diffs)

	var diff strings.Builder
	diff.WriteString(fmt.Sprintf("--- %s (original)\n", path))
	diff.WriteString(fmt.Sprintf("+++ %s (modified)\n", path))
	diff.WriteString(dmp.PatchToText(patches))

	return diff.String()
}
