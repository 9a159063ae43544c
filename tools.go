//go:build tools

package tools

// This file tracks the CLI tools used during development.
// It is not compiled into the binary.
//
// - github.com/pressly/goose/v3/cmd/goose: pinned through the tool directive in go.mod
// - github.com/matryer/moq: invoked by the go:generate lines next to each consumer interface
