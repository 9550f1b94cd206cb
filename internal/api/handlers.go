package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/webpuppet/webpuppet/internal/bridge"
	"github.com/webpuppet/webpuppet/internal/browser"
	"github.com/webpuppet/webpuppet/internal/logx"
)

const maxBodyBytes = 1 << 20

// Handlers adapts Facade operations to the HTTP surface. Every response is a
// {success, result|error} envelope; status-code mapping happens here, not in
// the core.
type Handlers struct {
	facade   *browser.Facade
	httpPort int
	wsPort   int
}

// NewHandlers constructs the HTTP adapters. The ports are only echoed in the
// status payload.
func NewHandlers(f *browser.Facade, httpPort, wsPort int) *Handlers {
	return &Handlers{facade: f, httpPort: httpPort, wsPort: wsPort}
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func writeResult(w http.ResponseWriter, result json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Result: result})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: msg})
}

// errorStatus maps the typed core failures onto HTTP status codes.
func errorStatus(err error) int {
	var ve *browser.ValidationError
	var te *bridge.TimeoutError
	var re *bridge.RemoteError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrNotConnected), errors.Is(err, bridge.ErrConnectionLost):
		return http.StatusServiceUnavailable
	case errors.As(err, &te):
		return http.StatusGatewayTimeout
	case errors.As(err, &re):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) finish(w http.ResponseWriter, result json.RawMessage, err error) {
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeResult(w, result)
}

// decodeBody parses the request body into v. An empty body is accepted and
// leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

type clickBody struct {
	Selector string `json:"selector"`
}

type typeBody struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type navigateBody struct {
	URL string `json:"url"`
}

type executeBody struct {
	Script string `json:"script"`
}

type screenshotBody struct {
	FullPage bool `json:"fullPage"`
}

func (h *Handlers) Content(w http.ResponseWriter, r *http.Request) {
	res, err := h.facade.Content(r.Context())
	h.finish(w, res, err)
}

func (h *Handlers) HTML(w http.ResponseWriter, r *http.Request) {
	res, err := h.facade.HTML(r.Context())
	h.finish(w, res, err)
}

func (h *Handlers) Selection(w http.ResponseWriter, r *http.Request) {
	res, err := h.facade.Selection(r.Context())
	h.finish(w, res, err)
}

func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var body executeBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.facade.Execute(r.Context(), body.Script)
	h.finish(w, res, err)
}

func (h *Handlers) Click(w http.ResponseWriter, r *http.Request) {
	var body clickBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.facade.Click(r.Context(), body.Selector)
	h.finish(w, res, err)
}

func (h *Handlers) Type(w http.ResponseWriter, r *http.Request) {
	var body typeBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.facade.Type(r.Context(), body.Selector, body.Text)
	h.finish(w, res, err)
}

func (h *Handlers) Navigate(w http.ResponseWriter, r *http.Request) {
	var body navigateBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.facade.Navigate(r.Context(), body.URL)
	h.finish(w, res, err)
}

func (h *Handlers) Screenshot(w http.ResponseWriter, r *http.Request) {
	var body screenshotBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.facade.Screenshot(r.Context(), body.FullPage)
	h.finish(w, res, err)
}

type statusPayload struct {
	Connected    bool       `json:"connected"`
	WSPort       int        `json:"wsPort"`
	HTTPPort     int        `json:"httpPort"`
	LastActivity *time.Time `json:"lastActivity,omitempty"`
	MessageCount uint64     `json:"messageCount"`
}

// Status reports the bridge snapshot. It never blocks and never touches the
// browser connection.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	st := h.facade.Status()
	payload := statusPayload{
		Connected:    st.Connected,
		WSPort:       h.wsPort,
		HTTPPort:     h.httpPort,
		MessageCount: st.MessageCount,
	}
	if !st.LastActivity.IsZero() {
		t := st.LastActivity
		payload.LastActivity = &t
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool          `json:"success"`
		Status  statusPayload `json:"status"`
	}{Success: true, Status: payload})
}

type systemPayload struct {
	GoVersion      string  `json:"goVersion"`
	NumGoroutine   int     `json:"numGoroutine"`
	CPUCount       int     `json:"cpuCount"`
	MemTotalBytes  uint64  `json:"memTotalBytes"`
	MemUsedPercent float64 `json:"memUsedPercent"`
}

// System reports host facts for operators.
func (h *Handlers) System(w http.ResponseWriter, r *http.Request) {
	payload := systemPayload{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if n, err := cpu.CountsWithContext(r.Context(), true); err == nil {
		payload.CPUCount = n
	} else {
		logx.Log.Debug().Err(err).Msg("cpu counts")
	}
	if vm, err := mem.VirtualMemoryWithContext(r.Context()); err == nil {
		payload.MemTotalBytes = vm.Total
		payload.MemUsedPercent = vm.UsedPercent
	} else {
		logx.Log.Debug().Err(err).Msg("virtual memory")
	}
	b, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "system info unavailable")
		return
	}
	writeResult(w, b)
}
