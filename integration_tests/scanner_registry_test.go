//go:build integration
// +build integration

package integration_tests

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagfill/internal/data"
	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/registry"
)

const layoutPage = `<!DOCTYPE html>
<html><body>
<template id="page"><h1>{{ title }}</h1><insert template="nav"></insert><ul><repeat for="item of items"><insert template="row"></insert></repeat></ul></template>
</body></html>`

const partialsPage = `<template id="nav"><nav><if cond="{{ signedIn }}">Account</if><else>Sign in</else></nav></template>
<template id="row"><li class="{{ kind }}">{{ label }}</li></template>`

func TestIntegration_ScannerRegistry_CrossFileInserts(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"layout.html":           layoutPage,
		"partials/partials.htm": partialsPage,
	})
	reg, _, collector := scanTemplates(t, dir)
	require.False(t, collector.HasErrors(), "%v", collector.GetAllErrors())
	assert.Equal(t, []string{"nav", "page", "row"}, reg.IDs())

	ctx, err := data.Parse([]byte(`
title: Orders
signedIn: true
items:
  - {label: first, kind: new}
  - {label: second, kind: old}
`), data.FormatYAML)
	require.NoError(t, err)

	out, err := renderTemplate(reg, "page", ctx)
	require.NoError(t, err)
	assert.Equal(t,
		`<h1>Orders</h1><nav>Account</nav><ul><li class="new">first</li><li class="old">second</li></ul>`,
		out)
}

func TestIntegration_ScannerRegistry_DependencyAnalysis(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"layout.html":          layoutPage,
		"partials.html":        partialsPage,
		"dangling/broken.html": `<template id="broken"><insert template="gone"></insert></template>`,
	})
	reg, _, _ := scanTemplates(t, dir)
	analyzer := registry.NewDependencyAnalyzer(reg)

	assert.Equal(t, []string{"nav", "row"}, analyzer.GetDependencyGraph()["page"])
	assert.ElementsMatch(t, []string{"row", "page"}, analyzer.GetAffected("row"))
	assert.Equal(t, map[string][]string{"broken": {"gone"}}, analyzer.MissingDependencies())
	assert.Empty(t, analyzer.DetectCircularDependencies())

	_, err := renderTemplate(reg, "broken", map[string]any{})
	require.Error(t, err)
	assert.True(t, errors.IsReferenceError(err))
}

func TestIntegration_ScannerRegistry_DuplicateIDs(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"a.html": `<template id="shared"><p>a</p></template>`,
		"b.html": `<template id="shared"><p>b</p></template>`,
	})
	reg, _, collector := scanTemplates(t, dir)

	require.Equal(t, 1, reg.Count(), "the first file scanned keeps the id")
	require.True(t, collector.HasErrors())
	problems := collector.GetProblems()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Message, `template "shared" is already defined`)
}

func TestIntegration_ScannerRegistry_ManyFiles(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 50; i++ {
		files[fmt.Sprintf("group%d/t%02d.html", i%5, i)] = fmt.Sprintf(
			`<template id="t%02d"><p>{{ n }}</p></template>`, i)
	}
	dir := createTemplatesDir(t, files)
	reg, _, collector := scanTemplates(t, dir)

	require.False(t, collector.HasErrors())
	assert.Equal(t, 50, reg.Count())

	info, ok := reg.Get("t07")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "group2", "t07.html"), info.FilePath)
	assert.Equal(t, registry.SourceFile, info.Source)

	out, err := renderTemplate(reg, "t07", map[string]any{"n": 7})
	require.NoError(t, err)
	assert.Equal(t, "<p>7</p>", out)
}
