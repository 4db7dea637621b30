package main

import "github.com/eshaffer321/ledger-reconciler/internal/cli"

func main() {
	cli.Execute()
}
