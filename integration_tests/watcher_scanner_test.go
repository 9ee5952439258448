//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagfill/internal/logging"
	"github.com/conneroisu/tagfill/internal/scanner"
	"github.com/conneroisu/tagfill/internal/watcher"
)

// startWatcher wires a watcher over dir that rescans through s, the same
// way the watch and serve commands do.
func startWatcher(t *testing.T, ctx context.Context, dir string, s *scanner.TemplateScanner) *watcher.FileWatcher {
	t.Helper()
	fw, err := watcher.NewFileWatcher(50*time.Millisecond, logging.Nop())
	require.NoError(t, err)
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.ScannerFilter(s))
	fw.AddHandler(watcher.RescanHandler(s, logging.Nop()))
	require.NoError(t, fw.AddRecursive(dir))
	require.NoError(t, fw.Start(ctx))
	t.Cleanup(func() { _ = fw.Stop() })
	return fw
}

func TestIntegration_WatcherScanner_ModifiedFileIsRescanned(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"greet.html": `<template id="greet"><p>Hello {{ name }}</p></template>`,
	})
	reg, s, _ := scanTemplates(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWatcher(t, ctx, dir, s)

	out, err := renderTemplate(reg, "greet", map[string]any{"name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "<p>Hello Ada</p>", out)

	createTemplateFile(t, dir, "greet.html", `<template id="greet"><p>Goodbye {{ name }}</p></template>`)

	require.Eventually(t, func() bool {
		out, err := renderTemplate(reg, "greet", map[string]any{"name": "Ada"})
		return err == nil && out == "<p>Goodbye Ada</p>"
	}, 5*time.Second, 25*time.Millisecond)
}

func TestIntegration_WatcherScanner_NewAndDeletedFiles(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"page.html": `<template id="page"><insert template="extra"></insert></template>`,
	})
	reg, s, _ := scanTemplates(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWatcher(t, ctx, dir, s)

	_, err := renderTemplate(reg, "page", map[string]any{})
	require.Error(t, err, "extra is not defined yet")

	extra := createTemplateFile(t, dir, "extra.html", `<template id="extra"><em>extra</em></template>`)
	require.Eventually(t, func() bool {
		out, err := renderTemplate(reg, "page", map[string]any{})
		return err == nil && out == "<em>extra</em>"
	}, 5*time.Second, 25*time.Millisecond)

	require.NoError(t, os.Remove(extra))
	require.Eventually(t, func() bool {
		_, ok := reg.Get("extra")
		return !ok
	}, 5*time.Second, 25*time.Millisecond)
	assert.Equal(t, []string{"page"}, reg.IDs())
}

func TestIntegration_WatcherScanner_IgnoresOtherFiles(t *testing.T) {
	dir := createTemplatesDir(t, map[string]string{
		"card.html": `<template id="card"><p>card</p></template>`,
	})
	reg, s, _ := scanTemplates(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startWatcher(t, ctx, dir, s)

	events := reg.Watch()
	defer reg.UnWatch(events)

	createTemplateFile(t, dir, "notes.txt", `<template id="notes">not a template file</template>`)
	createTemplateFile(t, dir, "more.html", `<template id="more"><p>more</p></template>`)

	select {
	case event := <-events:
		assert.Equal(t, "more", event.Template.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the new template")
	}
	_, ok := reg.Get("notes")
	assert.False(t, ok)
}
