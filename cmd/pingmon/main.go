package main

import "pingmon/internal/cli"

func main() {
	cli.Execute()
}
