package config

import (
	"fmt"
	"os"
	"strings"
)

// SetKeyInFile sets a global option in the config file at path, creating the
// file if needed. See SetSectionKeyInFile.
func SetKeyInFile(path, key, value string) error {
	return SetSectionKeyInFile(path, "", key, value)
}

// SetSectionKeyInFile sets key in the given section ("" for global) of the
// config file at path. An existing line for the key is replaced in place;
// otherwise the line is added at the end of the section, and a missing
// section is appended to the file. Comments and other lines are preserved.
func SetSectionKeyInFile(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	var lines []string
	if text := strings.TrimSuffix(string(data), "\n"); text != "" {
		lines = strings.Split(text, "\n")
	}

	entry := key
	if value != "" {
		entry = key + " " + value
	}

	var (
		current = ""
		found   = section == ""
		insert  = -1
	)
	if section == "" {
		insert = len(lines)
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			if current == "" && section == "" && insert == len(lines) {
				insert = i
			}
			current = strings.TrimSpace(strings.Trim(trimmed, "[]"))
			if current == section {
				found = true
				insert = i + 1
			}
			continue
		}
		if current != section || trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if section != "" {
				insert = i + 1
			}
			continue
		}
		if name, _, _ := strings.Cut(trimmed, " "); name == key {
			lines[i] = entry
			return writeFileAtomic(path, joinLines(lines), 0644)
		}
		if section != "" {
			insert = i + 1
		}
	}

	switch {
	case !found:
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", entry)
	default:
		// keep the blank lines that separate the section from the next one
		for section == "" && insert > 0 && insert < len(lines) && strings.TrimSpace(lines[insert-1]) == "" {
			insert--
		}
		lines = append(lines[:insert], append([]string{entry}, lines[insert:]...)...)
	}

	return writeFileAtomic(path, joinLines(lines), 0644)
}

func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
