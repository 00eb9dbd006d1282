package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/metrics"
	"github.com/JakeFAU/sitegen/internal/site"
)

// ErrorTrailerPrefix starts the line appended to a stream that failed after
// its first chunk was sent.
const ErrorTrailerPrefix = "[[sitegen:error]]"

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// generateSite streams the page as chunked text/plain. Each chunk is flushed
// as soon as the generator yields it. A failed write stops delivery but not
// persistence, which the generator finishes before the loop exits.
func (s *Server) generateSite(w http.ResponseWriter, r *http.Request) {
	id, err := parseSiteID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req := site.GenerationRequest{SiteID: id, Prompt: body.Prompt}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.Limiter != nil && !s.opts.Limiter.Allow(strconv.FormatInt(id, 10)) {
		metrics.ObserveRateLimited("generate")
		writeError(w, http.StatusTooManyRequests, "too many generation requests for this site")
		return
	}
	if _, err := s.sites.Get(r.Context(), id); err != nil {
		if errors.Is(err, site.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		s.logger.Error("lookup site failed", zap.Int64("site_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch site")
		return
	}

	logger := s.logger.With(zap.Int64("site_id", id), zap.String("request_id", RequestID(r.Context())))
	flusher, _ := w.(http.Flusher)
	started := false
	for chunk, err := range s.generator.Generate(r.Context(), req) {
		if err != nil {
			logger.Warn("generation stream failed", zap.Bool("headers_sent", started), zap.Error(err))
			if !started {
				writeError(w, statusForError(err), err.Error())
				return
			}
			if _, werr := fmt.Fprintf(w, "\n%s %s\n", ErrorTrailerPrefix, err.Error()); werr == nil && flusher != nil {
				flusher.Flush()
			}
			return
		}
		if !started {
			startStream(w)
			started = true
		}
		if _, werr := io.WriteString(w, chunk); werr != nil {
			logger.Info("client went away mid-stream", zap.Error(werr))
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if !started {
		startStream(w)
	}
}

func startStream(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, site.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, site.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
