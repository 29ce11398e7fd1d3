package main

import "smartassist/cmd"

func main() {
	cmd.Execute()
}
