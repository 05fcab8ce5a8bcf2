package main

import (
	"os"

	"github.com/dmitrijs2005/toolmeter/internal/ledgerctl"
)

func main() {
	if err := ledgerctl.Execute(); err != nil {
		os.Exit(1)
	}
}
