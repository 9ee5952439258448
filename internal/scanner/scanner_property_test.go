//go:build property
// +build property

package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/tagfill/internal/registry"
)

func TestScannerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("scanning twice yields identical registries", prop.ForAll(
		func(ids []string) bool {
			dir := t.TempDir()
			seen := make(map[string]bool)
			for i, id := range ids {
				if seen[id] {
					continue
				}
				seen[id] = true
				content := fmt.Sprintf(`<template id="%s"><p>{{ v%d }}</p></template>`, id, i)
				if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.html", i)), []byte(content), 0o644); err != nil {
					return false
				}
			}

			scan := func() map[string]string {
				reg := registry.NewTemplateRegistry()
				s := NewTemplateScanner(reg, nil)
				defer s.Close()
				if err := s.ScanDirectory(context.Background(), dir); err != nil {
					return nil
				}
				hashes := make(map[string]string)
				for _, info := range reg.GetAll() {
					hashes[info.ID] = info.Hash
				}
				return hashes
			}

			first, second := scan(), scan()
			if first == nil || len(first) != len(seen) || len(first) != len(second) {
				return false
			}
			for id, hash := range first {
				if second[id] != hash {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(6, gen.Identifier()),
	))

	properties.TestingRun(t)
}
