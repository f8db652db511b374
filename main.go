package main

import "talkbridge/cmd"

func main() {
	cmd.Execute()
}
