// Command deskctl drives a desk headlessly: it runs seeded simulations,
// prints option chains and stress tables, and can work against the same
// SQLite file the server uses.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
