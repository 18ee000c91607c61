package main

import "github.com/encodeous/rplof/cmd"

func main() {
	cmd.Execute()
}
