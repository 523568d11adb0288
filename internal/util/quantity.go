package util

import (
	"fmt"
	"strings"
)

// ParseMemory converts a memory size string (e.g. "2G", "512M") to
// MiB. Empty input returns 0, meaning no limit.
func ParseMemory(memory string) (int, error) {
	memory = strings.TrimSpace(memory)
	if memory == "" {
		return 0, nil
	}

	var value float64
	var unit string
	n, err := fmt.Sscanf(memory, "%f%s", &value, &unit)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("invalid memory value: %s", memory)
	}
	if n == 1 {
		// Bare number: bytes.
		return int(value / (1024 * 1024)), nil
	}

	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "B":
		return int(value / (1024 * 1024)), nil
	case "K", "KB", "KI", "KIB":
		return int(value / 1024), nil
	case "M", "MB", "MI", "MIB":
		return int(value), nil
	case "G", "GB", "GI", "GIB":
		return int(value * 1024), nil
	default:
		return 0, fmt.Errorf("unknown memory unit: %s", unit)
	}
}
