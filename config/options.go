package config

import (
	"fmt"
	"strings"
)

// ParseOptions parses name=value pairs given with repeated --options flags.
// A later pair overrides an earlier one with the same name.
func ParseOptions(pairs []string) (map[string]string, error) {
	options := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid option %q, expected name=value", pair)
		}
		options[name] = value
	}
	return options, nil
}
