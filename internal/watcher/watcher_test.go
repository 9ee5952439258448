package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/scanner"
)

func htmlOnly(path string) bool {
	return filepath.Ext(path) == ".html"
}

// collect starts fw and returns a channel receiving every batch.
func collect(t *testing.T, fw *FileWatcher) <-chan []Change {
	t.Helper()
	batches := make(chan []Change, 16)
	fw.AddHandler(func(_ context.Context, changes []Change) error {
		batches <- changes
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, fw.Start(ctx))
	return batches
}

func next(t *testing.T, batches <-chan []Change) []Change {
	t.Helper()
	select {
	case changes := <-batches:
		return changes
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch received")
		return nil
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "written", Written.String())
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "unknown", Kind(9).String())
}

func TestAddRecursiveSkipsGit(t *testing.T) {
	fw, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pages", "partials"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	require.NoError(t, fw.AddRecursive(root))
	assert.Equal(t, []string{
		root,
		filepath.Join(root, "pages"),
		filepath.Join(root, "pages", "partials"),
	}, fw.WatchedPaths())

	assert.Error(t, fw.AddRecursive("../../../etc"))
	assert.Error(t, fw.AddRecursive(filepath.Join(root, "missing")))
}

func TestBatchesAreFilteredAndCoalesced(t *testing.T) {
	fw, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	dir := t.TempDir()
	require.NoError(t, fw.AddRecursive(dir))
	fw.AddFilter(htmlOnly)
	batches := collect(t, fw)

	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(page, []byte("<p></p>"), 0o644))
	}

	assert.Equal(t, []Change{{Kind: Written, Path: page}}, next(t, batches))

	require.NoError(t, os.Remove(page))
	assert.Equal(t, []Change{{Kind: Removed, Path: page}}, next(t, batches))
}

func TestNewDirectoryIsWatched(t *testing.T) {
	fw, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	dir := t.TempDir()
	require.NoError(t, fw.AddRecursive(dir))
	fw.AddFilter(htmlOnly)
	batches := collect(t, fw)

	sub := filepath.Join(dir, "partials")
	require.NoError(t, os.Mkdir(sub, 0o755))
	card := filepath.Join(sub, "card.html")
	require.NoError(t, os.WriteFile(card, []byte("<p></p>"), 0o644))

	assert.Contains(t, next(t, batches), Change{Kind: Written, Path: card})
	assert.Contains(t, fw.WatchedPaths(), sub)
}

func TestStopIsIdempotent(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}

func TestDrainSortsAndEmpties(t *testing.T) {
	pending := map[string]Kind{"b.html": Removed, "a.html": Written}
	assert.Equal(t, []Change{
		{Kind: Written, Path: "a.html"},
		{Kind: Removed, Path: "b.html"},
	}, drain(pending))
	assert.Empty(t, pending)
}

func TestNoGitFilter(t *testing.T) {
	assert.True(t, NoGitFilter("site/index.html"))
	assert.False(t, NoGitFilter(".git/index"))
	assert.False(t, NoGitFilter("repo/.git/HEAD"))
}

func TestScannerFilter(t *testing.T) {
	s := scanner.NewTemplateScanner(registry.NewTemplateRegistry(), nil)
	defer s.Close()
	accept := ScannerFilter(s)
	assert.True(t, accept("site/index.html"))
	assert.False(t, accept("site/index.templ"))
}

func TestRescanHandler(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(`<template id="card"><p>{{ a }}</p></template>`), 0o644))

	reg := registry.NewTemplateRegistry()
	s := scanner.NewTemplateScanner(reg, nil)
	defer s.Close()
	handle := RescanHandler(s, nil)
	ctx := context.Background()

	require.NoError(t, handle(ctx, []Change{{Kind: Written, Path: page}}))
	assert.Equal(t, []string{"card"}, reg.IDs())

	require.NoError(t, os.WriteFile(page, []byte(`<template id="row"></template>`), 0o644))
	require.NoError(t, handle(ctx, []Change{{Kind: Written, Path: page}}))
	assert.Equal(t, []string{"row"}, reg.IDs())

	require.NoError(t, os.Remove(page))
	require.NoError(t, handle(ctx, []Change{{Kind: Removed, Path: page}}))
	assert.Equal(t, 0, reg.Count())
}

func TestRescanHandlerContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.html")
	good := filepath.Join(dir, "good.html")
	require.NoError(t, os.WriteFile(bad, []byte(`<template id="x"></template><template id="x"></template>`), 0o644))
	require.NoError(t, os.WriteFile(good, []byte(`<template id="ok"></template>`), 0o644))

	reg := registry.NewTemplateRegistry()
	s := scanner.NewTemplateScanner(reg, nil)
	defer s.Close()

	err := RescanHandler(s, nil)(context.Background(), []Change{
		{Kind: Written, Path: bad},
		{Kind: Written, Path: good},
	})
	assert.Error(t, err)
	assert.Equal(t, []string{"ok"}, reg.IDs())
}

func TestConcurrentRegistration(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			fw.AddFilter(NoGitFilter)
		}()
		go func() {
			defer wg.Done()
			fw.AddHandler(func(context.Context, []Change) error { return nil })
		}()
	}
	wg.Wait()

	assert.Len(t, fw.filters, 10)
	assert.Len(t, fw.handlers, 10)
}
