// Command migrate applies the embedded database migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mercuryim/authd/internal/config"
	"github.com/mercuryim/authd/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("migrations %s applied\n", *direction)
}
