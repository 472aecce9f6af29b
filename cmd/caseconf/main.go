package main

import "github.com/emiliopalmerini/caseconf/internal/cli"

func main() {
	cli.Execute()
}
