package util

import (
	"fmt"
	"strings"
)

// ParseMemory converts an engine sandbox memory limit such as "2G" or "512M"
// to MiB. An empty string means no limit and yields 0.
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
		// bare numbers are bytes, as docker --memory reads them
		return int(value / (1024 * 1024)), nil
	}

	unit = strings.ToUpper(strings.TrimSpace(unit))
	switch unit {
	case "B":
		return int(value / (1024 * 1024)), nil
	case "K", "KB", "KI", "KIB":
		return int(value / 1024), nil
	case "M", "MB", "MI", "MIB":
		return int(value), nil
	case "G", "GB", "GI", "GIB":
		return int(value * 1024), nil
	case "T", "TB", "TI", "TIB":
		return int(value * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown memory unit: %s", unit)
	}
}

// FormatMemory renders MiB in the form docker --memory accepts.
func FormatMemory(mib int) string {
	switch {
	case mib <= 0:
		return ""
	case mib%1024 == 0:
		return fmt.Sprintf("%dg", mib/1024)
	default:
		return fmt.Sprintf("%dm", mib)
	}
}
