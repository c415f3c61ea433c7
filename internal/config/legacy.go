package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// structuredExtensions are read through viper; anything else is treated as
// the line-oriented "key#value" format.
var structuredExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".toml": true,
}

func isLegacyFile(path string) bool {
	return !structuredExtensions[strings.ToLower(filepath.Ext(path))]
}

func readLegacyFile(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseLegacy(f)
}

// parseLegacy reads "key#value" lines. Blank lines and lines starting with
// "//" are skipped. A line without a '#' separator or with an empty value is
// rejected.
func parseLegacy(r io.Reader) (map[string]interface{}, error) {
	settings := make(map[string]interface{})
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		key, value, ok := strings.Cut(line, "#")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("line %d: invalid configuration %q (want key#value)", lineNo, line)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("line %d: empty value for %q", lineNo, key)
		}
		settings[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}
