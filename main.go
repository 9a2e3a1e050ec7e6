package main

import "github.com/samsaffron/mdview/cmd"

func main() {
	cmd.Execute()
}
