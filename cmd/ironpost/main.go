// Package main — cmd/ironpost/main.go
//
// ironpost CLI entrypoint: status, config show/validate, rules
// list/validate, scan, start, and version. See internal/cli for the
// command implementations.
package main

import "github.com/dongwonkwak/ironpost/internal/cli"

var buildVersion = "dev"

func main() {
	cli.SetVersion(buildVersion)
	cli.Execute()
}
