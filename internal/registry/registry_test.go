package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tagfill/internal/engine"
	"github.com/conneroisu/tagfill/internal/markup"
)

func template(t *testing.T, id, body string) *TemplateInfo {
	t.Helper()
	root := markup.MustParse(fmt.Sprintf(`<template id="%s">%s</template>`, id, body)).Children[0]
	return &TemplateInfo{
		ID:       id,
		FilePath: "templates/" + id + ".html",
		Source:   SourceFile,
		Root:     root,
		Hash:     fmt.Sprintf("%x", len(body)),
	}
}

func TestNewTemplateRegistry(t *testing.T) {
	registry := NewTemplateRegistry()

	assert.NotNil(t, registry)
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.GetAll())
	assert.Empty(t, registry.IDs())
}

func TestTemplateRegistry_Register(t *testing.T) {
	registry := NewTemplateRegistry()
	info := template(t, "card", `<p>{{ name }}</p><insert template="footer"></insert>`)

	assert.True(t, registry.Register(info))

	retrieved, exists := registry.Get("card")
	require.True(t, exists)
	assert.Same(t, info, retrieved)
	assert.Equal(t, []string{"footer"}, retrieved.Inserts)
	assert.False(t, retrieved.LastMod.IsZero())
	assert.Equal(t, 1, registry.Count())
}

func TestTemplateRegistry_RegisterUnchanged(t *testing.T) {
	registry := NewTemplateRegistry()
	events := registry.Watch()
	defer registry.UnWatch(events)

	first := template(t, "card", `<p>x</p>`)
	second := template(t, "card", `<p>x</p>`)

	assert.True(t, registry.Register(first))
	assert.False(t, registry.Register(second))

	event := <-events
	assert.Equal(t, EventTypeAdded, event.Type)
	select {
	case event := <-events:
		t.Fatalf("unexpected event %v", event.Type)
	default:
	}

	retrieved, _ := registry.Get("card")
	assert.Same(t, first, retrieved)
}

func TestTemplateRegistry_Update(t *testing.T) {
	registry := NewTemplateRegistry()
	registry.Register(template(t, "card", `<p>old</p>`))

	updated := template(t, "card", `<p>brand new</p>`)
	assert.True(t, registry.Register(updated))

	retrieved, exists := registry.Get("card")
	assert.True(t, exists)
	assert.Same(t, updated, retrieved)
	assert.Equal(t, 1, registry.Count())
}

func TestTemplateRegistry_Remove(t *testing.T) {
	registry := NewTemplateRegistry()
	registry.Register(template(t, "card", `<p></p>`))

	assert.True(t, registry.Remove("card"))
	assert.False(t, registry.Remove("card"))

	_, exists := registry.Get("card")
	assert.False(t, exists)
	assert.Equal(t, 0, registry.Count())
}

func TestTemplateRegistry_RemoveByPath(t *testing.T) {
	registry := NewTemplateRegistry()

	a := template(t, "a", `<p></p>`)
	b := template(t, "b", `<p></p>`)
	c := template(t, "c", `<p></p>`)
	a.FilePath = "pages/shared.html"
	b.FilePath = "pages/shared.html"
	registry.Register(a)
	registry.Register(b)
	registry.Register(c)

	removed := registry.RemoveByPath("pages/shared.html")
	assert.Equal(t, []string{"a", "b"}, removed)
	assert.Equal(t, []string{"c"}, registry.IDs())
	assert.Empty(t, registry.RemoveByPath("pages/missing.html"))
}

func TestTemplateRegistry_GetAllSorted(t *testing.T) {
	registry := NewTemplateRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		registry.Register(template(t, id, `<p></p>`))
	}

	all := registry.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "mid", all[1].ID)
	assert.Equal(t, "zeta", all[2].ID)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, registry.IDs())
}

func TestTemplateRegistry_Watch(t *testing.T) {
	registry := NewTemplateRegistry()
	events := registry.Watch()

	registry.Register(template(t, "card", `<p>1</p>`))
	registry.Register(template(t, "card", `<p>22</p>`))
	registry.Remove("card")

	var got []EventType
	for i := 0; i < 3; i++ {
		select {
		case event := <-events:
			assert.Equal(t, "card", event.Template.ID)
			assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
			got = append(got, event.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []EventType{EventTypeAdded, EventTypeUpdated, EventTypeRemoved}, got)

	registry.UnWatch(events)
	_, open := <-events
	assert.False(t, open)
}

func TestTemplateRegistry_FullWatcherDoesNotBlock(t *testing.T) {
	registry := NewTemplateRegistry()
	events := registry.Watch()
	defer registry.UnWatch(events)

	done := make(chan struct{})
	go func() {
		for i := 0; i < watcherBuffer+10; i++ {
			registry.Register(template(t, fmt.Sprintf("t%d", i), `<p></p>`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Register blocked on a full watcher")
	}
	assert.Len(t, events, watcherBuffer)
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "added", EventTypeAdded.String())
	assert.Equal(t, "updated", EventTypeUpdated.String())
	assert.Equal(t, "removed", EventTypeRemoved.String())
	assert.Equal(t, "unknown", EventType(9).String())
}

func TestTemplateRegistry_LookupRendersThroughEngine(t *testing.T) {
	registry := NewTemplateRegistry()
	registry.Register(template(t, "page", `<h1>{{ title }}</h1><insert template="footer"></insert>`))
	registry.Register(template(t, "footer", `<small>{{ title }}</small>`))

	_, ok := registry.Lookup("missing")
	assert.False(t, ok)

	out, err := engine.New(registry).RenderTemplate("page", map[string]any{"title": "Hi"})
	require.NoError(t, err)
	html, err := markup.RenderString(out)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi</h1><small>Hi</small>", html)
}

func TestTemplateRegistry_Concurrent(t *testing.T) {
	registry := NewTemplateRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("t%d-%d", n, j%5)
				registry.Register(&TemplateInfo{ID: id, Hash: fmt.Sprint(j)})
				registry.Get(id)
				registry.Lookup(id)
				registry.GetAll()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 40, registry.Count())
}
