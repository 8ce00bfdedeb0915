package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/classifieds/internal/logging"
	"github.com/JonMunkholm/classifieds/internal/restore"
)

// RestoreRequest is the body of POST /api/admin/restore and its preview.
type RestoreRequest struct {
	BackupData *restore.BackupDocument `json:"backupData"`
	Options    restore.Options         `json:"options"`
}

// TableResult is the per-table entry of a restore response.
type TableResult struct {
	Success  bool                `json:"success"`
	Count    int                 `json:"count"`
	Error    string              `json:"error,omitempty"`
	Status   restore.TableStatus `json:"status"`
	Rejected int                 `json:"rejected,omitempty"`
	Records  int                 `json:"records"`
	Resumed  bool                `json:"resumed,omitempty"`
}

// RestoreResponse is the body returned once a run completes.
type RestoreResponse struct {
	Success        bool                              `json:"success"`
	Message        string                            `json:"message"`
	Results        map[restore.TableName]TableResult `json:"results"`
	FailedTables   []restore.TableName               `json:"failedTables,omitempty"`
	BackupMetadata json.RawMessage                   `json:"backupMetadata"`
	RunID          string                            `json:"runId"`
	Plan           []restore.TableName               `json:"plan"`
	Cleared        []restore.ClearResult             `json:"cleared,omitempty"`
	Resumed        bool                              `json:"resumed,omitempty"`
	DurationMs     int64                             `json:"durationMs"`
}

func toRestoreResponse(sum *restore.RestoreSummary, metadata json.RawMessage) RestoreResponse {
	if len(metadata) == 0 {
		metadata = json.RawMessage("null")
	}

	resp := RestoreResponse{
		Success:        sum.OverallSuccess,
		Message:        sum.Message(),
		Results:        make(map[restore.TableName]TableResult, len(sum.PerTable)),
		FailedTables:   sum.FailedTables,
		BackupMetadata: metadata,
		RunID:          sum.RunID,
		Plan:           sum.Plan,
		Cleared:        sum.Cleared,
		Resumed:        sum.Resumed,
		DurationMs:     sum.Duration.Milliseconds(),
	}
	for table, res := range sum.PerTable {
		resp.Results[table] = TableResult{
			Success:  res.Success,
			Count:    res.Inserted,
			Error:    res.Error,
			Status:   res.Status,
			Rejected: res.Rejected,
			Records:  res.Records,
			Resumed:  res.Resumed,
		}
	}
	return resp
}

// decodeRestoreRequest reads a bounded JSON body. Numbers stay json.Number
// so identities and amounts reach the store unchanged.
func (s *Server) decodeRestoreRequest(w http.ResponseWriter, r *http.Request) (*RestoreRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Restore.MaxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var req RestoreRequest
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &restore.ValidationError{
				Field:  "body",
				Reason: fmt.Sprintf("larger than %d bytes", tooLarge.Limit),
			}
		}
		if errors.Is(err, io.EOF) {
			return nil, &restore.ValidationError{Field: "body", Reason: "is empty"}
		}
		return nil, &restore.ValidationError{Field: "body", Reason: err.Error()}
	}
	return &req, nil
}

// handleRestore runs a restore and returns its summary.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRestoreRequest(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	caller := callerFromRequest(r)
	logger := logging.WithFields(r.Context(), "actor", caller.Actor)
	if req.BackupData != nil {
		logger.Info("restore requested",
			"tables", len(req.BackupData.Data),
			"clear_existing", req.Options.ClearExisting,
			"restore_tables", req.Options.RestoreTables,
			"resume", req.Options.Resume,
		)
	}

	sum, err := s.service.Restore(r.Context(), caller, req.BackupData, req.Options)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, toRestoreResponse(sum, req.BackupData.Metadata))
}

// handlePreview returns the plan a restore would follow.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeRestoreRequest(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	preview, err := s.service.Preview(req.BackupData, req.Options)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, preview)
}

// handleListTables returns the catalog in master order.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.Tables()
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", restore.ErrUnexpected, err))
		return
	}
	writeJSON(w, map[string]any{"tables": tables})
}

// handleListRuns returns recent restore runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", s.cfg.Restore.HistoryLimit)
	if limit > s.cfg.Restore.HistoryLimit {
		limit = s.cfg.Restore.HistoryLimit
	}

	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", restore.ErrUnexpected, err))
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

// handleHealth reports liveness and, if configured, store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"activeRestores": s.service.ActiveRuns(),
	}

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			logging.FromContext(r.Context()).Warn("health check failed", "error", err)
			body["status"] = "unavailable"
			writeJSONStatus(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, body)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
