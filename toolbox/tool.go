package toolbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

// bundledTools returns the fixed tool set served by this server. Filesystem
// tools resolve every caller-supplied path inside root.
func bundledTools(root string) []Tool {
	return []Tool{
		{
			Name:        "calculator",
			Description: "Perform basic mathematical calculations",
			InputSchema: calculatorSchema,
			Handler:     calculator,
		},
		{
			Name:        "file_reader",
			Description: "Read contents of a text file",
			InputSchema: fileReaderSchema,
			Handler:     fileReader(root),
		},
		{
			Name:        "file_writer",
			Description: "Write text content to a file",
			InputSchema: fileWriterSchema,
			Handler:     fileWriter(root),
		},
		{
			Name:        "system_time",
			Description: "Get system time",
			InputSchema: systemTimeSchema,
			Handler:     systemTime,
		},
		{
			Name:        "list_files",
			Description: "List files in a directory",
			InputSchema: listFilesSchema,
			Handler:     listFiles(root),
		},
		{
			Name:        "add",
			Description: "Add two numbers",
			InputSchema: addSchema,
			Handler:     add,
		},
		{
			Name:        "edit_file",
			Description: "Replace text in a file and report the change as a unified diff",
			InputSchema: editFileSchema,
			Handler:     editFile(root),
		},
		{
			Name:        "system_info",
			Description: "Get basic system information",
			InputSchema: systemInfoSchema,
			Handler:     systemInfo,
		},
	}
}

// resolvePath anchors a caller-supplied path inside root. The path is rooted
// before cleaning so ".." segments cannot climb out of it.
func resolvePath(root, path string) string {
	return filepath.Join(root, filepath.Clean("/"+path))
}

func calculator(_ context.Context, args map[string]any) (string, error) {
	expression, _ := args["expression"].(string)
	if expression == "" {
		return "", errors.New("expression is required")
	}

	result, err := evaluate(expression)
	if err != nil {
		return "", fmt.Errorf("calculation failed: %w", err)
	}

	return fmt.Sprintf("Result: %s", formatNumber(result)), nil
}

func fileReader(root string) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		if path == "" {
			return "", errors.New("path is required")
		}

		fullPath := resolvePath(root, path)

		info, err := os.Stat(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to stat file with path %s: %w", path, err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("path %s is a directory, not a file", path)
		}

		bs, err := os.ReadFile(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to read file with path %s: %w", path, err)
		}

		return fmt.Sprintf("File contents of '%s':\n\n%s", path, string(bs)), nil
	}
}

func fileWriter(root string) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		content, _ := args["content"].(string)
		if path == "" {
			return "", errors.New("path is required")
		}

		fullPath := resolvePath(root, path)

		if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
			return "", fmt.Errorf("failed to create directory for path %s: %w", path, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0600); err != nil {
			return "", fmt.Errorf("failed to write file with path %s: %w", path, err)
		}

		return fmt.Sprintf("Successfully wrote %d characters to '%s'", utf8.RuneCountInString(content), path), nil
	}
}

func systemTime(_ context.Context, _ map[string]any) (string, error) {
	return fmt.Sprintf("Current time: %s", time.Now().Format("2006-01-02 15:04:05")), nil
}

func listFiles(root string) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		directory, _ := args["directory"].(string)
		if directory == "" {
			directory = "."
		}
		pattern, _ := args["pattern"].(string)

		var matcher glob.Glob
		if pattern != "" {
			m, err := glob.Compile(pattern)
			if err != nil {
				return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			matcher = m
		}

		fullPath := resolvePath(root, directory)

		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to read directory %s: %w", directory, err)
		}
		if len(entries) == 0 {
			return fmt.Sprintf("Directory '%s' is empty", directory), nil
		}

		// Entries arrive sorted by name; the directory suffix is added after
		// matching so patterns see the plain name.
		var names []string
		for _, entry := range entries {
			name := entry.Name()
			if matcher != nil && !matcher.Match(name) {
				continue
			}
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}

		if len(names) == 0 {
			return fmt.Sprintf("No files in '%s' match pattern '%s'", directory, pattern), nil
		}

		return strings.Join(names, "\n"), nil
	}
}

func add(_ context.Context, args map[string]any) (string, error) {
	a, _ := args["a"].(float64)
	b, _ := args["b"].(float64)

	return fmt.Sprintf("Result: %s", formatNumber(a+b)), nil
}

func editFile(root string) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		path, _ := args["path"].(string)
		oldText, _ := args["old_text"].(string)
		newText, _ := args["new_text"].(string)
		dryRun, _ := args["dry_run"].(bool)

		if path == "" {
			return "", errors.New("path is required")
		}
		if oldText == "" {
			return "", errors.New("old_text is required")
		}

		fullPath := resolvePath(root, path)

		bs, err := os.ReadFile(fullPath)
		if err != nil {
			return "", fmt.Errorf("failed to read file with path %s: %w", path, err)
		}

		content := normalizeLineEndings(string(bs))
		oldText = normalizeLineEndings(oldText)
		if !strings.Contains(content, oldText) {
			return "", fmt.Errorf("old_text not found in %s", path)
		}

		newContent := strings.ReplaceAll(content, oldText, normalizeLineEndings(newText))
		diff := unifiedDiff(content, newContent, path)

		if dryRun {
			return fmt.Sprintf("Dry run, changes not applied to '%s':\n\n%s", path, diff), nil
		}

		if err := os.WriteFile(fullPath, []byte(newContent), 0600); err != nil {
			return "", fmt.Errorf("failed to write file with path %s: %w", path, err)
		}

		return fmt.Sprintf("Edited '%s':\n\n%s", path, diff), nil
	}
}

func systemInfo(_ context.Context, _ map[string]any) (string, error) {
	return fmt.Sprintf("OS: %s\nArchitecture: %s\nCPUs: %d\nGo version: %s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version()), nil
}
