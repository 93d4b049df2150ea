// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MealMind Contributors

// Command gen-schema writes the JSON Schemas of the auth API request bodies
// to schemas/<name>.schema.json.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mealmind/mealmind/internal/httpapi"
)

func main() {
	dir := "schemas"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	for _, name := range httpapi.SchemaNames() {
		schema, err := httpapi.GenerateSchema(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating %s schema: %v\n", name, err)
			os.Exit(1)
		}

		outPath := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
