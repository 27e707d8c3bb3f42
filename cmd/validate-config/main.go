// Command validate-config checks telescout configuration files without
// connecting to Telegram. Exits non-zero when any file is invalid.
package main

import (
	"fmt"
	"os"

	"github.com/blockedby/telescout/internal/config"
)

func main() {
	paths := os.Args[1:]
	if len(paths) == 0 {
		paths = []string{"config.yaml"}
	}

	failed := false
	for _, path := range paths {
		if _, err := config.Load(path); err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			failed = true
			continue
		}

		for _, warning := range config.CheckFilePermissions(path) {
			fmt.Printf("⚠️  %s\n", warning)
		}
		fmt.Printf("✅ %s is valid\n", path)
	}

	if failed {
		os.Exit(1)
	}
}
