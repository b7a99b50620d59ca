package main

import (
	"os"

	"github.com/gasparian/lsh-search-go/app"
)

func main() {
	if err := app.Execute(); err != nil {
		os.Exit(1)
	}
}
