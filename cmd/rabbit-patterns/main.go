package main

import "github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
