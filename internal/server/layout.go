package server

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/registry"
)

const pageStyle = `body{font-family:system-ui,-apple-system,sans-serif;margin:0;padding:20px;background:#f5f5f5}
main{max-width:1100px;margin:0 auto;background:#fff;padding:20px;border-radius:8px;box-shadow:0 2px 10px rgba(0,0,0,.1)}
h1{color:#333;border-bottom:2px solid #007acc;padding-bottom:10px}
table{border-collapse:collapse;width:100%}td,th{border-bottom:1px solid #ddd;padding:6px 8px;text-align:left}
.error{border-left:4px solid #dc3545;background:#fdf2f2;padding:12px}
.muted{color:#666;font-size:12px}`

// reloadScript reconnects to /ws and reloads the page on every message.
const reloadScript = `<script>
(function(){
  function connect(){
    var proto = location.protocol === "https:" ? "wss:" : "ws:";
    var ws = new WebSocket(proto + "//" + location.host + "/ws");
    ws.onmessage = function(){ location.reload(); };
    ws.onclose = function(){ setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`

// page wraps body in the preview document. The reload script is included
// when liveReload is set.
func page(title string, liveReload bool, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head><body><main>",
			templ.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "</main>"); err != nil {
			return err
		}
		if liveReload {
			if _, err := io.WriteString(w, reloadScript); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body></html>")
		return err
	})
}

func indexContent(templates []*registry.TemplateInfo) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<h1>tagfill templates</h1>")
		if len(templates) == 0 {
			b.WriteString(`<p class="muted">No templates registered.</p>`)
		} else {
			b.WriteString("<table><thead><tr><th>Template</th><th>Source</th><th>Inserts</th></tr></thead><tbody>")
			for _, t := range templates {
				location := string(t.Source)
				if t.FilePath != "" {
					location = t.FilePath
				}
				fmt.Fprintf(&b, `<tr><td><a href="%s">%s</a></td><td class="muted">%s</td><td>%s</td></tr>`,
					templ.EscapeString(string(renderURL(t.ID))),
					templ.EscapeString(t.ID),
					templ.EscapeString(location),
					templ.EscapeString(strings.Join(t.Inserts, ", ")),
				)
			}
			b.WriteString("</tbody></table>")
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func renderURL(id string) templ.SafeURL {
	return templ.URL("/render/" + url.PathEscape(id))
}

// renderedContent places already-rendered template markup on the page.
func renderedContent(id, rendered string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<p class="muted"><a href="/">templates</a> / %s</p><div id="tagfill-output">%s</div>`,
			templ.EscapeString(id), rendered)
		return err
	})
}

func errorContent(id string, err error) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		kind := string(errors.TypeOf(err))
		if kind == "" {
			kind = "error"
		}
		_, werr := fmt.Fprintf(w, `<p class="muted"><a href="/">templates</a> / %s</p><div class="error"><strong>%s error</strong><pre>%s</pre></div>`,
			templ.EscapeString(id),
			templ.EscapeString(kind),
			templ.EscapeString(err.Error()),
		)
		return werr
	})
}
