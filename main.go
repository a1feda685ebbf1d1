package main

import "github.com/yatrisafe/tourist-safety/cmd"

func main() {
	cmd.Execute()
}
