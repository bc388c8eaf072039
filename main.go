package main

import "github.com/mts-studios/targetview/cmd"

func main() {
	cmd.Execute()
}
