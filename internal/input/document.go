package input

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/mdview/internal/clipboard"
)

// Clipboard is the argument that reads the document from the system clipboard.
const Clipboard = "clipboard"

// Document is markdown text and the name it is displayed under.
type Document struct {
	Name string
	Text string
}

// readClipboard is swapped in tests.
var readClipboard = clipboard.ReadText

// IsStatic reports whether arg names a source that cannot be watched:
// stdin, the clipboard or a line range of a file.
func IsStatic(arg string) bool {
	if arg == "" || arg == "-" || strings.EqualFold(arg, Clipboard) {
		return true
	}
	src, err := ParseSource(arg)
	return err == nil && src.Lines != nil && !fileExists(arg)
}

// Read loads a document. An empty arg or "-" reads stdin, "clipboard" reads
// the system clipboard, and anything else is a file spec such as
// "notes.md" or "notes.md:10-40".
func Read(arg string, stdin io.Reader) (Document, error) {
	switch {
	case arg == "" || arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return Document{}, fmt.Errorf("read stdin: %w", err)
		}
		return Document{Name: "stdin", Text: string(data)}, nil
	case strings.EqualFold(arg, Clipboard):
		text, err := readClipboard()
		if err != nil {
			return Document{}, err
		}
		return Document{Name: Clipboard, Text: text}, nil
	}

	// a file whose name happens to look like a region wins
	if fileExists(expandPath(arg)) {
		return readFile(Source{Path: arg})
	}
	src, err := ParseSource(arg)
	if err != nil {
		return Document{}, err
	}
	return readFile(src)
}

func readFile(src Source) (Document, error) {
	data, err := os.ReadFile(expandPath(src.Path))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", src.Path, err)
	}
	text := string(data)
	if src.Lines != nil {
		text = src.Lines.Slice(text)
	}
	return Document{Name: src.Name(), Text: text}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
