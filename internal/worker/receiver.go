package worker

import (
	"io"
	"log/slog"
	"net/http"
)

// PushReceiver is a local push endpoint: each POSTed body is handed to the
// worker's push handler.
type PushReceiver struct {
	w *Worker
}

func NewPushReceiver(w *Worker) *PushReceiver {
	return &PushReceiver{w: w}
}

func (p *PushReceiver) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(rw, "bad request", http.StatusBadRequest)
		return
	}
	payload, err := p.w.HandlePush(r.Context(), body)
	if err != nil {
		slog.Warn("push receive failed", "error", err, "path", r.URL.Path)
		http.Error(rw, "notification failed", http.StatusInternalServerError)
		return
	}
	slog.Debug("push received", "path", r.URL.Path, "tag", payload.Tag, "ttl", r.Header.Get("TTL"))
	rw.WriteHeader(http.StatusCreated)
}
