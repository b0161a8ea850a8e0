package mcp

import (
	"encoding/base32"
	"fmt"
	"strings"
)

// ToolNameSeparator joins the encoded server name and the bare tool name.
const ToolNameSeparator = "__"

// MaxQualifiedNameLength is the longest function name model providers accept.
const MaxQualifiedNameLength = 64

var serverNameEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// encodedMarker prefixes server segments that were base32-encoded. Plain
// segments never contain '_', so the marker cannot be mistaken for one.
const encodedMarker = "_"

// EncodeServerName maps a server name onto characters model providers accept
// in function names. Names made only of [A-Za-z0-9-] are kept as they are;
// any other name becomes "_" followed by its lowercase unpadded base32 form.
// The result never contains "__", so the first separator in a qualified name
// always ends the server segment.
func EncodeServerName(name string) string {
	if plainServerName(name) {
		return name
	}
	return encodedMarker + strings.ToLower(serverNameEncoding.EncodeToString([]byte(name)))
}

// DecodeServerName reverses EncodeServerName.
func DecodeServerName(encoded string) (string, error) {
	if rest, ok := strings.CutPrefix(encoded, encodedMarker); ok {
		if rest == "" {
			return "", fmt.Errorf("%w: %q: empty server segment", ErrInvalidToolName, encoded)
		}
		raw, err := serverNameEncoding.DecodeString(strings.ToUpper(rest))
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidToolName, encoded, err)
		}
		return string(raw), nil
	}
	if !plainServerName(encoded) {
		return "", fmt.Errorf("%w: %q: unsupported characters in server segment", ErrInvalidToolName, encoded)
	}
	return encoded, nil
}

func plainServerName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}

// QualifyToolName builds the catalog name for tool on server.
func QualifyToolName(server, tool string) string {
	return EncodeServerName(server) + ToolNameSeparator + tool
}

// SplitQualifiedName recovers the server and bare tool name from a qualified
// name. Tool names may themselves contain the separator.
func SplitQualifiedName(qualified string) (server, tool string, err error) {
	encoded, tool, ok := strings.Cut(qualified, ToolNameSeparator)
	if !ok || encoded == "" || tool == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidToolName, qualified)
	}
	server, err = DecodeServerName(encoded)
	if err != nil {
		return "", "", err
	}
	return server, tool, nil
}

// validToolName reports whether a bare tool name only uses characters model
// providers accept in function names.
func validToolName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
