package main

import "github.com/kmoe-dl/kmoe/cmd"

func main() {
	cmd.Execute()
}
