// Package main is the single-binary entrypoint for QuizHub.
package main

import "github.com/quizhub/quizhub/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
