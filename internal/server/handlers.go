package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/markup"
	"github.com/conneroisu/tagfill/internal/registry"
	"github.com/conneroisu/tagfill/internal/validation"
	"github.com/conneroisu/tagfill/internal/version"
)

// ErrorKindHeader names the kind of a failed render on 422 responses.
const ErrorKindHeader = "X-Tagfill-Error-Kind"

// TemplateSummary is the JSON form of a registered template.
type TemplateSummary struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	FilePath     string    `json:"file_path,omitempty"`
	Hash         string    `json:"hash,omitempty"`
	Inserts      []string  `json:"inserts"`
	LastModified time.Time `json:"last_modified"`
}

func summarize(info *registry.TemplateInfo) TemplateSummary {
	inserts := info.Inserts
	if inserts == nil {
		inserts = []string{}
	}
	return TemplateSummary{
		ID:           info.ID,
		Source:       string(info.Source),
		FilePath:     info.FilePath,
		Hash:         info.Hash,
		Inserts:      inserts,
		LastModified: info.LastMod,
	}
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	templ.Handler(page("tagfill", true, indexContent(s.registry.GetAll()))).ServeHTTP(w, r)
}

func (s *PreviewServer) handleRender(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validation.ValidateTemplateID(id); err != nil {
		http.Error(w, "invalid template id", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "template not found: "+id, http.StatusNotFound)
		return
	}

	ctx, err := s.data()
	if err != nil {
		logger := s.logger.With("request_id", RequestIDFrom(r.Context()))
		logger.Error(r.Context(), err, "Failed to load render data", "template", id)
		http.Error(w, "failed to load render data", http.StatusInternalServerError)
		return
	}

	var out *markup.Node
	err = s.metrics.ObserveRender(func() error {
		var renderErr error
		out, renderErr = s.engine.RenderTemplate(id, ctx)
		return renderErr
	})
	if err != nil {
		w.Header().Set(ErrorKindHeader, string(errors.TypeOf(err)))
		templ.Handler(page("tagfill: "+id, true, errorContent(id, err)),
			templ.WithStatus(http.StatusUnprocessableEntity),
		).ServeHTTP(w, r)
		return
	}

	rendered, err := markup.RenderString(out)
	if err != nil {
		http.Error(w, "failed to serialize output", http.StatusInternalServerError)
		return
	}
	templ.Handler(page("tagfill: "+id, true, renderedContent(id, rendered))).ServeHTTP(w, r)
}

func (s *PreviewServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	all := s.registry.GetAll()
	out := make([]TemplateSummary, 0, len(all))
	for _, info := range all {
		out = append(out, summarize(info))
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *PreviewServer) handleTemplate(w http.ResponseWriter, r *http.Request) {
	info, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "template not found"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, summarize(info))
}

func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"templates": s.registry.Count(),
		"clients":   s.ws.ClientCount(),
	})
}

func (s *PreviewServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response")
	}
}
