// Command fingerprint prints the local machine's device fingerprint as JSON,
// in the shape the login endpoint expects in its "fingerprint" field.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"blackjack-auth/internal/fingerprint"
)

func main() {
	normalized := flag.Bool("normalized", false, "print the normalized form instead of the raw snapshot")
	timeout := flag.Duration("timeout", 15*time.Second, "collection timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fp, err := fingerprint.NewHostProvider().Collect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collect fingerprint: %v\n", err)
		os.Exit(1)
	}

	var out interface{} = fp
	if *normalized {
		out = fingerprint.Normalize(fp)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode fingerprint: %v\n", err)
		os.Exit(1)
	}
}
