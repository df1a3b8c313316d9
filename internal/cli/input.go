package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// readModel returns the model text from path, or from piped stdin when path
// is empty. fallback is used when neither is given.
func readModel(path, fallback string) (string, error) {
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read model: %w", err)
		}
		return string(b), nil
	}
	if fallback != "" {
		return fallback, nil
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("model text is required (--model file or stdin)")
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", fmt.Errorf("model text is required (--model file or stdin)")
	}
	return string(b), nil
}

// readRequest decodes a JSON request file into v. Unknown fields are errors.
func readRequest(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open request: %w", err)
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
