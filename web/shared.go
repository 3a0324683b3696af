package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/RezaEskandarii/gomq/types"
)

type jobStatusResponse struct {
	ID      string          `json:"id"`
	Status  types.JobStatus `json:"status"`
	Result  any             `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Job     *types.Job      `json:"job,omitempty"`
	DelayMs int64           `json:"delayMs,omitempty"`
}

func newJobStatusResponse(id string, rec types.StatusRecord) jobStatusResponse {
	resp := jobStatusResponse{
		ID:     id,
		Status: rec.Status,
		Result: rec.Result,
		Job:    rec.Job,
	}
	if rec.Job != nil {
		resp.DelayMs = rec.Job.DelayMillis()
	}
	if rec.Err != nil {
		resp.Error = rec.Err.Error()
	}
	return resp
}

func (h *HttpRouteHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encode response")
	}
}

func printBanner(addr string) {
	width := 46
	fmt.Println("##############################################")
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Printf("# %-*s #\n", width-4, "gomq inspection endpoint")
	fmt.Printf("# %-*s #\n", width-4, fmt.Sprintf("listening on %s", addr))
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Println("##############################################")
}
