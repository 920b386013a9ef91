// Package api serves role views over the projected records and accepts
// action intents for submission.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ndisview/internal/auth"
	"ndisview/internal/chain"
	"ndisview/internal/directory"
	"ndisview/internal/metrics"
	"ndisview/internal/model"
	"ndisview/internal/projector"
)

// Deps are the collaborators a Handler needs.
type Deps struct {
	Reader        chain.Reader
	Writer        chain.Writer
	Directory     *directory.Resolver
	Credentials   auth.Credentials
	Metrics       *metrics.Registry
	ReadTimeout   time.Duration
	SubmitTimeout time.Duration
}

type Handler struct {
	d Deps
}

func NewHandler(d Deps) *Handler {
	if d.ReadTimeout <= 0 {
		d.ReadTimeout = 20 * time.Second
	}
	if d.SubmitTimeout <= 0 {
		d.SubmitTimeout = 10 * time.Second
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	return &Handler{d: d}
}

// Router wires every endpoint.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.observe)
	r.Handle("/metrics", h.d.Metrics.Handler()).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/views/{role}", h.View).Methods("GET")
	v1.HandleFunc("/contract", h.Contract).Methods("GET")
	v1.HandleFunc("/accounts", h.Accounts).Methods("GET")
	v1.HandleFunc("/actions", h.SubmitAction).Methods("POST")
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type viewResponse struct {
	Role  model.Role      `json:"role"`
	Mode  projector.Mode  `json:"mode"`
	Range string          `json:"range"`
	Rows  []projector.Row `json:"rows"`
	Stats projector.Stats `json:"stats"`
}

// View projects the current records for the role in the path.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	role, ok := model.ParseRole(mux.Vars(r)["role"])
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}
	q := r.URL.Query()
	mode, err := projector.ParseMode(q.Get("mode"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := chain.ParseBlock(q.Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rng := chain.BlockRange{From: from, To: chain.Latest}

	records, err := h.read(r.Context(), rng)
	if err != nil {
		log.Printf("api: read failed range=%s: %v", rng, err)
		respondError(w, http.StatusBadGateway, "record source unavailable")
		return
	}

	rows, stats, err := projector.Project(records, role, q.Get("caller"), projector.Options{Facts: h.facts(), Mode: mode})
	h.d.Metrics.ObserveProjection(stats, err)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, viewResponse{Role: role, Mode: mode, Range: rng.String(), Rows: rows, Stats: stats})
}

type actionResponse struct {
	TxID      chain.TxID   `json:"txId"`
	Action    model.Action `json:"action"`
	RecordKey string       `json:"recordKey,omitempty"`
}

type contractResponse struct {
	directory.Contract
	Calls    projector.ActionSet      `json:"calls,omitempty"`
	Withheld []projector.PolicyDenial `json:"withheld,omitempty"`
}

// Contract shows the administrator and participant funds. With a role query
// it also lists the record-less calls open to that role and caller.
func (h *Handler) Contract(w http.ResponseWriter, r *http.Request) {
	if h.d.Directory == nil {
		respondError(w, http.StatusServiceUnavailable, "no account directory")
		return
	}
	resp := contractResponse{Contract: h.d.Directory.Contract()}
	if q := r.URL.Query(); q.Get("role") != "" {
		role, ok := model.ParseRole(q.Get("role"))
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown role")
			return
		}
		resp.Calls, resp.Withheld = projector.OfferedCalls(role, q.Get("caller"), h.facts())
	}
	respondJSON(w, http.StatusOK, resp)
}

// Accounts lists registered accounts to an authenticated administrator.
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	role, ok := h.login(w, r)
	if !ok {
		return
	}
	if role != model.RoleAdministrator {
		respondError(w, http.StatusForbidden, "administrator login required")
		return
	}
	if h.d.Directory == nil {
		respondJSON(w, http.StatusOK, []directory.Account{})
		return
	}
	accts, err := h.d.Directory.Accounts()
	if err != nil {
		log.Printf("api: list accounts: %v", err)
		respondError(w, http.StatusInternalServerError, "directory unavailable")
		return
	}
	respondJSON(w, http.StatusOK, accts)
}

// login resolves the basic-auth role or writes a 401.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) (model.Role, bool) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="ndisview"`)
		respondError(w, http.StatusUnauthorized, "login required")
		return "", false
	}
	role, err := h.d.Credentials.Authenticate(user, pass)
	if err != nil {
		respondError(w, http.StatusUnauthorized, err.Error())
		return "", false
	}
	return role, true
}

// SubmitAction checks the intent against a fresh projection for the
// authenticated role and hands it to the chain writer.
func (h *Handler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	role, ok := h.login(w, r)
	if !ok {
		return
	}

	var in chain.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authorize(r.Context(), role, in); err != nil {
		if errors.Is(err, chain.ErrConnection) || errors.Is(err, chain.ErrConfiguration) {
			respondError(w, http.StatusBadGateway, "record source unavailable")
			return
		}
		if errors.Is(err, directory.ErrAlreadyRegistered) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		if unreadable(err) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		respondError(w, statusFor(chain.Classify(err).Kind), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.d.SubmitTimeout)
	defer cancel()
	started := time.Now()
	txID, err := h.d.Writer.Submit(ctx, in)
	h.d.Metrics.ObserveSubmit(started, err)
	if err != nil {
		te := chain.Classify(err)
		log.Printf("api: submit failed action=%s key=%s kind=%s: %v", in.Action, in.RecordKey, te.Kind, te.Err)
		respondError(w, statusFor(te.Kind), te.Error())
		return
	}

	if err := h.apply(in); err != nil {
		log.Printf("api: tx %s submitted but directory update failed: %v", txID, err)
	}
	log.Printf("api: submitted tx=%s action=%s role=%s", txID, in.Action, role)
	respondJSON(w, http.StatusAccepted, actionResponse{TxID: txID, Action: in.Action, RecordKey: in.RecordKey})
}

// authorize refuses intents the caller's current view would not offer.
// Record-less calls are checked against the role, the administrator fact and,
// for registration, the directory instead.
func (h *Handler) authorize(ctx context.Context, role model.Role, in chain.Intent) error {
	if in.RecordKey == "" && projector.IsCall(in.Action) {
		if err := projector.AuthorizeCall(role, in.From, h.facts(), in.Action); err != nil {
			return err
		}
		if in.Action == model.ActionRegisterAccount {
			return h.precheckRegistration(in)
		}
		return nil
	}

	records, err := h.read(ctx, chain.FullRange())
	if err != nil {
		return err
	}
	if _, err := projector.Authorize(records, role, in.From, h.facts(), in.RecordKey, in.Action); err != nil {
		return err
	}
	if in.Action == model.ActionRegisterAccount {
		return h.precheckRegistration(in)
	}
	return nil
}

func (h *Handler) precheckRegistration(in chain.Intent) error {
	if h.d.Directory == nil {
		return nil
	}
	if _, err := h.d.Directory.RoleOf(in.Params["account"]); err == nil {
		return directory.ErrAlreadyRegistered
	}
	return nil
}

// apply mirrors a submitted administrator call into the directory.
func (h *Handler) apply(in chain.Intent) error {
	if h.d.Directory == nil {
		return nil
	}
	switch in.Action {
	case model.ActionRegisterAccount:
		role := model.RoleParticipant
		if r, ok := in.Params["role"]; ok {
			parsed, known := model.ParseRole(r)
			if !known {
				return fmt.Errorf("%w: %q", projector.ErrUnknownRole, r)
			}
			role = parsed
		}
		return h.d.Directory.Register(in.From, in.Params["account"], role)
	case model.ActionDeposit:
		return h.d.Directory.Deposit(in.From, in.Amount())
	}
	return nil
}

func (h *Handler) read(ctx context.Context, rng chain.BlockRange) ([]model.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, h.d.ReadTimeout)
	defer cancel()
	started := time.Now()
	recs, err := h.d.Reader.ReadRecords(ctx, rng)
	h.d.Metrics.ObserveRead(started)
	return recs, err
}

func (h *Handler) facts() projector.Facts {
	if h.d.Directory == nil {
		return projector.Facts{}
	}
	return h.d.Directory.Facts()
}

// unreadable reports a projection failure caused by the records themselves,
// answered the same way as on the view endpoint.
func unreadable(err error) bool {
	var malformed *projector.MalformedRecordError
	var unknown *projector.UnknownStatusError
	return errors.As(err, &malformed) || errors.As(err, &unknown)
}

func statusFor(k chain.ErrorKind) int {
	switch k {
	case chain.KindInvalidInput:
		return http.StatusBadRequest
	case chain.KindTimeout:
		return http.StatusGatewayTimeout
	case chain.KindUnauthorized:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// statusRecorder captures the status code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		if strings.HasPrefix(endpoint, "/metrics") {
			return
		}
		h.d.Metrics.ObserveHTTP(r.Method, endpoint, rec.status, started)
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, map[string]string{"error": msg})
}
