package main

import "signup-service/cmd"

func main() {
	cmd.Execute()
}
