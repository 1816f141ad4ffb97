package main

import (
	"log"
	_ "time/tzdata"

	"clubhouse/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
