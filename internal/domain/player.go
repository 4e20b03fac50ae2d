package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxPlayerNameLen = 36

// NormalizePlayerName trims the name and checks its length.
func NormalizePlayerName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLen {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxPlayerNameLen)
	}
	return name, nil
}
