package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bobarin/promptreel/internal/metadata"
	"github.com/bobarin/promptreel/internal/models"
	"github.com/go-chi/chi/v5"
)

const adminNotConfigured = "Admin password not configured. Set ADMIN_PASSWORD to enable admin access."

// AdminPanel handles GET /admin
func (h *Handler) AdminPanel(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.IsAdmin(r) {
		http.Redirect(w, r, "/admin/login", http.StatusFound)
		return
	}

	doc, err := h.metadata.Load()
	if err != nil {
		h.log.Error("failed to load metadata", "error", err)
		http.Error(w, "Failed to load videos", http.StatusInternalServerError)
		return
	}
	stats, err := h.metadata.Stats()
	if err != nil {
		h.log.Error("failed to compute stats", "error", err)
		http.Error(w, "Failed to load videos", http.StatusInternalServerError)
		return
	}

	data := struct {
		Videos []models.VideoRecord
		Stats  models.Stats
	}{doc.Videos, stats}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.render(w, "admin.html", data); err != nil {
		h.log.Warn("render template", "url", r.URL.Path, "error", err)
	}
}

// AdminLoginPage handles GET /admin/login
func (h *Handler) AdminLoginPage(w http.ResponseWriter, r *http.Request) {
	if h.sessions.IsAdmin(r) {
		http.Redirect(w, r, "/admin", http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.render(w, "admin_login.html", map[string]bool{"Enabled": h.cfg.AdminPassword != ""}); err != nil {
		h.log.Warn("render template", "url", r.URL.Path, "error", err)
	}
}

// AdminLogin handles POST /admin/login
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if h.cfg.AdminPassword == "" {
		respondJSON(w, http.StatusServiceUnavailable, models.LoginResponse{Success: false, Error: adminNotConfigured})
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, models.LoginResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if req.Password == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) != 1 {
		h.log.Warn("admin login rejected", "remote", r.RemoteAddr)
		respondJSON(w, http.StatusUnauthorized, models.LoginResponse{Success: false, Error: "Invalid password"})
		return
	}

	if err := h.sessions.Login(r.Context(), w, r); err != nil {
		h.log.Error("failed to start admin session", "error", err)
		respondJSON(w, http.StatusInternalServerError, models.LoginResponse{Success: false, Error: "Failed to start session"})
		return
	}

	h.log.Info("admin logged in", "remote", r.RemoteAddr)
	respondJSON(w, http.StatusOK, models.LoginResponse{Success: true})
}

// AdminLogout handles GET /admin/logout
func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context(), w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

// DeleteVideo handles DELETE /admin/delete/{video_id}
func (h *Handler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "video_id")

	if err := h.metadata.Delete(id); err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Video not found")
			return
		}
		h.log.Error("failed to delete video", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete video")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Stats handles GET /stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.metadata.Stats()
	if err != nil {
		h.log.Error("failed to compute stats", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
