package main

import "github.com/BegleyBrothers/swanling/cmd"

func main() {
	cmd.Execute()
}
