package main

import (
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLen  = 16
	defaultName = "Anonymous"
)

// GenerateID returns a random UUID v4 string used as an opaque player id
func GenerateID() string {
	return uuid.NewString()
}

// CleanName trims a display name, applies the default and caps its length
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	return name
}
