package main

import "github.com/frahmantamala/scriptdeck/cmd"

func main() {
	cmd.Execute()
}
