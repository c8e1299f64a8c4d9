// Command incident-radar aggregates incidents from third-party status pages and serves
// them over HTTP.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
