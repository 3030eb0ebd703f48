// Package ui holds terminal output helpers for the CLI.
package ui
