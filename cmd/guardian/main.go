package main

import "github.com/ogulcanaydogan/credit-guardian/internal/cli"

func main() {
	cli.Execute()
}
