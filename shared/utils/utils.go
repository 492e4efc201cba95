package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// ExtOf returns the lowercase extension of a path without the leading dot.
// Extensionless paths yield "".
func ExtOf(p string) string {
	ext := path.Ext(p)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
