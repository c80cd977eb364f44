package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// CallRequest is the body of POST /v1/call.
type CallRequest struct {
	Prompt  string        `json:"prompt"`
	Options mixer.Options `json:"options,omitempty"`
}

// CallResponse is the body of a successful POST /v1/call.
type CallResponse struct {
	ProviderID   string          `json:"providerId"`
	ProviderName string          `json:"providerName"`
	Attempts     int             `json:"attempts"`
	Response     json.RawMessage `json:"response"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	res, err := s.mixer.Call(r.Context(), req.Prompt, req.Options)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set(ProviderHeader, res.ProviderID)
	writeJSON(w, http.StatusOK, CallResponse{
		ProviderID:   res.ProviderID,
		ProviderName: res.ProviderName,
		Attempts:     res.Attempts,
		Response:     res.Body,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mixer.Stats())
}

func (s *Server) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	s.mixer.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.mixer.ExportConfig()
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="model-mixer-config.json"`)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(r.Context(), w, errors.Join(errBadRequest, err))
		return
	}
	if err := s.mixer.ImportConfig(data); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	var patch mixer.ProviderPatch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := validatePatch(patch); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	p := mixer.NewProvider(s.newID())
	patch.Apply(&p)
	if err := s.mixer.AddProvider(p); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Location", "/v1/providers/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePatchProvider(w http.ResponseWriter, r *http.Request) {
	var patch mixer.ProviderPatch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := validatePatch(patch); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	p, err := s.mixer.PatchProvider(r.PathValue("id"), patch)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.mixer.RemoveProvider(r.PathValue("id")); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	// Fields left out of the body keep their current values.
	st := s.mixer.Config().Strategy
	if err := decode(w, r, &st); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if !st.Type.IsValid() {
		s.writeError(r.Context(), w, fmt.Errorf("%w: unknown strategy type %q", errBadRequest, st.Type))
		return
	}
	s.mixer.SetStrategy(st)
	writeJSON(w, http.StatusOK, s.mixer.Config().Strategy)
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	var body enabledBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if body.Enabled == nil {
		s.writeError(r.Context(), w, fmt.Errorf("%w: enabled is required", errBadRequest))
		return
	}
	s.mixer.SetEnabled(*body.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	s.mixer.Sweep(r.Context())
	writeJSON(w, http.StatusOK, s.mixer.Stats())
}

func validatePatch(p mixer.ProviderPatch) error {
	var problems []string
	if p.Type != nil && !p.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("type %q is invalid", *p.Type))
	}
	if p.Weight != nil && *p.Weight < 0 {
		problems = append(problems, "weight must not be negative")
	}
	if p.Timeout != nil && *p.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(problems, "; "))
	}
	return nil
}
