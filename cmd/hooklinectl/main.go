package main

import (
	"log"

	"github.com/hookline/hookline/cmd/hooklinectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
