// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schema of every request body to schemas/.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/holomush/holoauth/internal/web"
)

func main() {
	schemas, err := web.GenerateRequestSchemas()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll("schemas", 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	routes := make([]string, 0, len(schemas))
	for route := range schemas {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		var out bytes.Buffer
		if err := json.Indent(&out, schemas[route], "", "  "); err != nil {
			fmt.Fprintf(os.Stderr, "Error formatting %s schema: %v\n", route, err)
			os.Exit(1)
		}
		out.WriteByte('\n')

		outPath := filepath.Join("schemas", route+".request.schema.json")
		if err := os.WriteFile(outPath, out.Bytes(), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}
