package channelmirror

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tark/pkg/types"
)

// NewHTTPHandler exposes one webhook route per loaded Channel plugin:
// POST /channels/{pluginID}/webhook. Headers and query parameters are
// forwarded verbatim so a plugin can verify its own provider's
// signature scheme.
func (m *Mirror) NewHTTPHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/channels/{pluginID}/webhook", m.handleWebhook)
	return r
}

func (m *Mirror) handleWebhook(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	query := make(map[string]string, len(r.URL.Query()))
	for k := range r.URL.Query() {
		query[k] = r.URL.Query().Get(k)
	}

	resp, err := m.HandleWebhook(r.Context(), pluginID, types.ChannelWebhookRequest{
		Headers: headers,
		Body:    body,
		Query:   query,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
