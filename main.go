// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"os"

	"github.com/SnowMenchik/Parsr/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
