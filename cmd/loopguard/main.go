package main

import "github.com/loopguard/loopguard/internal/cli"

func main() {
	cli.Execute()
}
