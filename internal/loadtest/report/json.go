package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wesleyorama2/imload/internal/loadtest/engine"
)

// EncodeJSON writes result to w as indented JSON. Durations are encoded in
// nanoseconds.
func EncodeJSON(w io.Writer, result *engine.TestResult) error {
	if result == nil {
		return ErrNilResult
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// WriteJSON writes result to outputPath as indented JSON.
func WriteJSON(result *engine.TestResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}

	if err := EncodeJSON(f, result); err != nil {
		f.Close()
		return fmt.Errorf("failed to write JSON result: %w", err)
	}
	return f.Close()
}
