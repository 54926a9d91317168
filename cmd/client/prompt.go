package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

// needsAPIKey reports whether cmd with args still lacks the caller's API key.
func needsAPIKey(cmd string, args []string) bool {
	switch cmd {
	case "search":
		return true
	case "validate":
		return len(args) == 0
	}
	return false
}

// promptAPIKey asks for the API key without echoing it. It returns "" when
// stdin is not a terminal.
func promptAPIKey() string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}

	fmt.Fprint(os.Stderr, "API key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(key))
}
