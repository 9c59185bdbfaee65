package main

import (
	"net/http"
	"strings"
)

type contentRequest struct {
	Content string `json:"content"`
}

type improveResponse struct {
	Improved string `json:"improved"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

func (s *server) handleImprove(w http.ResponseWriter, r *http.Request) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, improveResponse{Improved: s.processor.Improve(content)})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	content, ok := readContent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{Summary: s.processor.Summarize(content)})
}

func readContent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		writeMessage(w, http.StatusBadRequest, "Content is required.")
		return "", false
	}
	return req.Content, true
}
