package main

import (
	"log"

	"assetvault/cmd/av/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
