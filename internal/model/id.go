package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewSandboxID returns a random 128-bit, hex-encoded sandbox identifier.
func NewSandboxID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
