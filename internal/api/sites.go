package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitegen/internal/site"
)

const (
	maxPromptLength = 4000
	maxTitleRunes   = 80
)

// SiteResponse is the camelCase site representation the frontend consumes.
type SiteResponse struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Prompt              string    `json:"prompt"`
	HTMLCodeURL         *string   `json:"htmlCodeUrl"`
	HTMLCodeDownloadURL *string   `json:"htmlCodeDownloadUrl"`
	ScreenshotURL       *string   `json:"screenshotUrl"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// UserResponse is the current-user payload.
type UserResponse struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"isActive"`
	ProfileID    int       `json:"profileId"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type createSiteRequest struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

func (s *Server) hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from the backend!"})
}

// currentUser serves a fixed user until authentication exists.
func (s *Server) currentUser(w http.ResponseWriter, _ *http.Request) {
	registered := time.Date(2025, time.June, 15, 15, 29, 56, 0, time.UTC)
	writeJSON(w, http.StatusOK, UserResponse{
		Username:     "user123",
		Email:        "example@example.com",
		IsActive:     true,
		ProfileID:    1,
		RegisteredAt: registered,
		UpdatedAt:    registered,
	})
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if len(prompt) > maxPromptLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("prompt exceeds %d bytes", maxPromptLength))
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = defaultTitle(prompt)
	}
	rec, err := s.sites.Create(r.Context(), title, prompt)
	if err != nil {
		s.logger.Error("create site failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create site")
		return
	}
	writeJSON(w, http.StatusCreated, s.toSiteResponse(rec))
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	recs, err := s.sites.List(r.Context())
	if err != nil {
		s.logger.Error("list sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	out := make([]SiteResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.toSiteResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": out})
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	id, err := parseSiteID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.sites.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, site.ErrNotFound) {
			writeError(w, http.StatusNotFound, "site not found")
			return
		}
		s.logger.Error("get site failed", zap.Int64("site_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch site")
		return
	}
	writeJSON(w, http.StatusOK, s.toSiteResponse(rec))
}

// toSiteResponse links artifacts only once they have been stored.
func (s *Server) toSiteResponse(rec site.Site) SiteResponse {
	resp := SiteResponse{
		ID:        rec.ID,
		Title:     rec.Title,
		Prompt:    rec.Prompt,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.HasHTML() {
		key := site.HTMLKey(rec.ID)
		resp.HTMLCodeURL = optional(s.opts.URLs.ObjectURL(key))
		resp.HTMLCodeDownloadURL = optional(s.opts.URLs.DownloadURL(key))
	}
	if rec.HasScreenshot() {
		resp.ScreenshotURL = optional(s.opts.URLs.ObjectURL(site.ScreenshotKey(rec.ID)))
	}
	return resp
}

func parseSiteID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "site_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("site_id must be a positive integer, got %q", raw)
	}
	return id, nil
}

func defaultTitle(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxTitleRunes {
		return prompt
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes])) + "…"
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
