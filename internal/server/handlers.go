package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hostpulse/hostpulse/internal/audit"
	"github.com/hostpulse/hostpulse/internal/db"
	"github.com/hostpulse/hostpulse/internal/metrics"
	"github.com/hostpulse/hostpulse/internal/monitor"
	"github.com/hostpulse/hostpulse/internal/predict"
	"github.com/hostpulse/hostpulse/internal/remedy"
	"github.com/hostpulse/hostpulse/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// handleStats serves the latest tick: snapshot, processes and health
// score.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	last := s.monitor.Latest()
	if last == nil {
		writeError(w, http.StatusServiceUnavailable, "no sample collected yet")
		return
	}
	writeJSON(w, http.StatusOK, types.StatsResponse{
		System:      toSystemStats(last.System),
		Processes:   toProcessInfos(last.Processes),
		HealthScore: last.Score,
		RecordCount: last.RecordCount,
		Timestamp:   last.GeneratedAt,
	})
}

// handleHistory serves recent system rows, newest window in ascending
// order. ?limit= selects the window size.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 60
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	if limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}

	rows, err := s.store.RecentSystem(r.Context(), limit)
	if err != nil {
		s.log.Error("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	items := make([]types.SystemStats, 0, len(rows))
	for _, row := range rows {
		items = append(items, *toSystemStats(row))
	}
	writeJSON(w, http.StatusOK, types.HistoryResponse{Items: items, Count: len(items)})
}

// handlePrediction serves the latest model outlook. While history is too
// short the response reports unavailable rather than erroring.
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	last := s.monitor.Latest()
	if last == nil || last.Prediction == nil {
		writeJSON(w, http.StatusOK, types.PredictionResponse{
			Available: false,
			Reason:    "insufficient history, keep the daemon running",
		})
		return
	}
	writeJSON(w, http.StatusOK, types.PredictionResponse{
		Available:  true,
		Prediction: toPredictionInfo(last.Prediction),
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := types.SuggestionsResponse{Suggestions: []string{}, Timestamp: time.Now().UTC()}
	if last := s.monitor.Latest(); last != nil && last.Suggestions != nil {
		resp.Suggestions = last.Suggestions
		resp.Timestamp = last.GeneratedAt
	}
	resp.Count = len(resp.Suggestions)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDBStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.log.Error("db stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store statistics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleExport dumps the full history to CSV and reports the files.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.export == nil {
		writeError(w, http.StatusServiceUnavailable, "export not configured")
		return
	}

	var req types.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	path := req.Path
	if path == "" {
		name := "hostpulse_" + time.Now().UTC().Format("20060102_150405") + ".csv"
		path = filepath.Join(s.opts.ExportDir, name)
	}

	res, err := s.export.Export(r.Context(), path)
	if err != nil {
		s.log.Error("export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
		return
	}
	s.log.Info("export complete",
		zap.String("system_file", res.SystemFile),
		zap.Int("system_rows", res.SystemRows))
	if s.aud != nil {
		_ = s.aud.Log(r.Context(), audit.NewEvent(audit.EventExportCompleted).
			WithComponent("server").
			WithDescription(fmt.Sprintf("Exported %d system rows to %s", res.SystemRows, res.SystemFile)).
			WithResult(audit.ResultSuccess).
			WithMetadata("process_rows", res.ProcessRows).
			WithMetadata("prediction_rows", res.PredictionRows))
	}
	writeJSON(w, http.StatusOK, types.ExportResponse{
		SystemFile:     res.SystemFile,
		ProcessFile:    res.ProcessFile,
		PredictionFile: res.PredictionFile,
		SystemRows:     res.SystemRows,
		ProcessRows:    res.ProcessRows,
		PredictionRows: res.PredictionRows,
	})
}

// handleKillProcess terminates one process by PID, honoring the
// deny list.
func (s *Server) handleKillProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.remedy == nil {
		writeError(w, http.StatusServiceUnavailable, "remediation not configured")
		return
	}

	var req types.KillProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.PID <= 0 {
		writeError(w, http.StatusBadRequest, "pid must be positive")
		return
	}

	name, err := s.remedy.TerminateProcess(r.Context(), req.PID)
	switch {
	case err == nil:
		metrics.RemediationActions.WithLabelValues("kill", "executed").Inc()
		if s.aud != nil {
			s.aud.LogRemediationExecuted(r.Context(), "kill", name, req.PID)
		}
		writeJSON(w, http.StatusOK, types.KillProcessResponse{
			PID:     req.PID,
			Status:  "terminated",
			Message: name,
		})
	case errors.Is(err, remedy.ErrProtected), errors.Is(err, remedy.ErrDisabled):
		metrics.RemediationActions.WithLabelValues("kill", "refused").Inc()
		if s.aud != nil {
			s.aud.LogRemediationRefused(r.Context(), "kill", name, req.PID, err.Error())
		}
		writeJSON(w, http.StatusForbidden, types.KillProcessResponse{
			PID:     req.PID,
			Status:  "refused",
			Message: err.Error(),
		})
	default:
		metrics.RemediationActions.WithLabelValues("kill", "failed").Inc()
		s.log.Warn("kill failed", zap.Int32("pid", req.PID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, types.KillProcessResponse{
			PID:     req.PID,
			Status:  "failed",
			Message: err.Error(),
		})
	}
}

// handleOptimize runs one cleanup pass: kill resource hogs from the
// allow list, clear caches, report freed memory.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.remedy == nil {
		writeError(w, http.StatusServiceUnavailable, "remediation not configured")
		return
	}

	res, err := s.remedy.Optimize(r.Context())
	switch {
	case errors.Is(err, remedy.ErrDisabled):
		metrics.RemediationActions.WithLabelValues("optimize", "refused").Inc()
		if s.aud != nil {
			s.aud.LogRemediationRefused(r.Context(), "optimize", "", 0, err.Error())
		}
		writeError(w, http.StatusForbidden, "remediation is disabled")
	case err != nil:
		metrics.RemediationActions.WithLabelValues("optimize", "failed").Inc()
		s.log.Warn("optimize failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("optimize failed: %v", err))
	default:
		metrics.RemediationActions.WithLabelValues("optimize", "executed").Inc()
		if s.aud != nil {
			s.aud.LogRemediationExecuted(r.Context(), "optimize", "", 0)
		}
		killed := res.KilledProcesses
		if killed == nil {
			killed = []string{}
		}
		writeJSON(w, http.StatusOK, types.OptimizeResponse{
			KilledProcesses: killed,
			MemoryFreedMB:   res.MemoryFreedMB,
			CacheCleared:    res.CacheCleared,
			Timestamp:       time.Now().UTC(),
		})
	}
}

// ─── DTO conversions ──────────────────────────────────────────────────────────

func toSystemStats(rec *db.SystemRecord) *types.SystemStats {
	if rec == nil {
		return nil
	}
	return &types.SystemStats{
		Timestamp:        rec.Timestamp,
		CPUPercent:       rec.CPUPercent,
		MemoryPercent:    rec.MemoryPercent,
		MemoryUsedGB:     rec.MemoryUsedGB,
		MemoryTotalGB:    rec.MemoryTotalGB,
		DiskPercent:      rec.DiskPercent,
		DiskUsedGB:       rec.DiskUsedGB,
		DiskTotalGB:      rec.DiskTotalGB,
		NetworkBytesSent: rec.NetworkBytesSent,
		NetworkBytesRecv: rec.NetworkBytesRecv,
		UptimeHours:      rec.UptimeHours,
		CPUCount:         rec.CPUCount,
		CPUFreqMHz:       rec.CPUFreqMHz,
	}
}

func toProcessInfos(recs []db.ProcessRecord) []types.ProcessInfo {
	out := make([]types.ProcessInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, types.ProcessInfo{
			PID:           rec.PID,
			Name:          rec.Name,
			CPUPercent:    rec.CPUPercent,
			MemoryPercent: rec.MemoryPercent,
			MemoryMB:      rec.MemoryMB,
		})
	}
	return out
}

func toPredictionInfo(p *predict.Prediction) *types.PredictionInfo {
	if p == nil {
		return nil
	}
	return &types.PredictionInfo{
		GeneratedAt:       p.GeneratedAt,
		FutureStress:      p.FutureStress,
		SlowdownRisk:      p.SlowdownRisk,
		RiskLevel:         p.RiskLevel,
		CPUTrend:          p.CPUTrend,
		MemoryTrend:       p.MemoryTrend,
		TimeToSlowdownMin: p.TimeToSlowdownMin,
	}
}

func toLiveUpdate(res *monitor.TickResult) *types.LiveUpdate {
	return &types.LiveUpdate{
		Type:        types.MessageTypeUpdate,
		System:      toSystemStats(res.System),
		Processes:   toProcessInfos(res.Processes),
		Prediction:  toPredictionInfo(res.Prediction),
		Suggestions: res.Suggestions,
		HealthScore: res.Score,
		RecordCount: res.RecordCount,
		Timestamp:   res.GeneratedAt,
	}
}
