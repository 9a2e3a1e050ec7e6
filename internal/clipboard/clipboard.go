package clipboard

import (
	"bytes"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// utility is one clipboard command line.
type utility struct {
	name string
	args []string
}

var pasteUtilities = map[string][]utility{
	"darwin": {{name: "pbpaste"}},
	"linux": {
		{name: "wl-paste", args: []string{"--no-newline"}},
		{name: "xclip", args: []string{"-selection", "clipboard", "-o"}},
	},
}

var copyUtilities = map[string][]utility{
	"darwin": {{name: "pbcopy"}},
	"linux": {
		{name: "wl-copy"},
		{name: "xclip", args: []string{"-selection", "clipboard"}},
	},
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// installed returns the utilities for goos found on PATH, in preference order.
func installed(table map[string][]utility, goos string) ([]utility, error) {
	candidates, ok := table[goos]
	if !ok {
		return nil, fmt.Errorf("clipboard not supported on %s", goos)
	}
	var found []utility
	for _, u := range candidates {
		if _, err := lookPath(u.name); err == nil {
			found = append(found, u)
		}
	}
	if len(found) == 0 {
		names := make([]string, len(candidates))
		for i, u := range candidates {
			names[i] = u.name
		}
		return nil, fmt.Errorf("no clipboard utility found (install %s)", strings.Join(names, " or "))
	}
	return found, nil
}

// ReadText reads text content from the system clipboard.
func ReadText() (string, error) {
	utils, err := installed(pasteUtilities, runtime.GOOS)
	if err != nil {
		return "", err
	}
	var lastErr error
	for _, u := range utils {
		var out bytes.Buffer
		cmd := exec.Command(u.name, u.args...)
		cmd.Stdout = &out
		if lastErr = cmd.Run(); lastErr == nil {
			return out.String(), nil
		}
	}
	return "", fmt.Errorf("failed to read clipboard: %w", lastErr)
}

// CopyText copies text to the system clipboard using the first installed utility.
func CopyText(text string) error {
	utils, err := installed(copyUtilities, runtime.GOOS)
	if err != nil {
		return err
	}
	u := utils[0]
	cmd := exec.Command(u.name, u.args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", u.name, err)
	}
	return nil
}
