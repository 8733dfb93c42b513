package main

import "github.com/taimoss/geoguessr-ai-1/cmd"

func main() {
	cmd.Execute()
}
