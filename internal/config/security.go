package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// placeholder values shipped in config.example.yaml
var placeholders = map[string]bool{
	"YOUR_API_ID_HERE":   true,
	"your_api_id_here":   true,
	"YOUR_API_HASH_HERE": true,
	"your_api_hash_here": true,
	"+1234567890":        true,
}

// ValidateCredentials checks Telegram credential formats and returns a list
// of problems. An empty result means the credentials look usable.
func ValidateCredentials(apiID, apiHash, phone string) []string {
	var warnings []string

	if apiID == "" {
		warnings = append(warnings, "TELEGRAM_API_ID is required: set it in .env or config.yaml")
	} else if placeholders[apiID] {
		warnings = append(warnings, "API ID is still set to placeholder value")
	} else if _, err := strconv.Atoi(apiID); err != nil {
		warnings = append(warnings, "API ID should be a number")
	}

	if apiHash == "" {
		warnings = append(warnings, "TELEGRAM_API_HASH is required: set it in .env or config.yaml")
	} else if placeholders[apiHash] {
		warnings = append(warnings, "API hash is still set to placeholder value")
	} else if len(apiHash) != 32 {
		warnings = append(warnings, "API hash should be a 32-character string")
	}

	if phone == "" {
		warnings = append(warnings, "TELEGRAM_PHONE is required: set it in .env or config.yaml")
	} else if placeholders[phone] {
		warnings = append(warnings, "phone number is still set to placeholder value")
	} else if !strings.HasPrefix(phone, "+") || len(phone) < 10 {
		warnings = append(warnings, "phone number should start with + and be at least 10 characters")
	}

	return warnings
}

// CheckFilePermissions warns when sensitive files are readable or writable
// by group or others. Missing files are skipped.
func CheckFilePermissions(paths ...string) []string {
	var warnings []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		mode := info.Mode().Perm()
		if mode&0044 != 0 {
			warnings = append(warnings, fmt.Sprintf("%s is readable by others (%04o), run: chmod 600 %s", path, mode, path))
		} else if mode&0022 != 0 {
			warnings = append(warnings, fmt.Sprintf("%s is writable by others (%04o), run: chmod 600 %s", path, mode, path))
		}
	}

	return warnings
}
