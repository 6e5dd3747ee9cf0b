/*
handlers.go - HTTP handlers for the arena ledger API

PURPOSE:
  Translates HTTP requests into ledger operations and ledger results back
  into JSON. No balance or match rule lives here; the handlers decode,
  call the engine, and encode.

ENDPOINTS:
  Players:
    GET    /api/players                      - List active players
    POST   /api/players                      - Create player
    GET    /api/players/{id}                 - Get player
    PATCH  /api/players/{id}                 - Update profile fields
    DELETE /api/players/{id}                 - Delete player
    POST   /api/players/{id}/deposit         - Credit balance

  Matches:
    GET    /api/matches                      - Active + recently settled
    POST   /api/matches                      - Create match (escrows fees)
    GET    /api/matches/{id}                 - Get match
    POST   /api/matches/{id}/award/{pid}     - Add points
    POST   /api/matches/{id}/end             - Settle by score
    POST   /api/matches/{id}/disqualify/{pid} - Settle by forfeit

  Admin:
    GET    /api/admin/audit                  - Run consistency audit

REQUEST FLOW:
  1. Decode JSON body into a request DTO (dto.go)
  2. Convert to ledger types; reject malformed input with 400
  3. Call Engine / PlayerLedger
  4. Map the error kind to a status (writeLedgerError) or encode the DTO

ERROR HANDLING:
  not_found 404, conflict 409, invalid_request 400, insufficient_funds 402,
  internal 500. Profile validation failures are 422. Internal errors are
  logged here and the client only sees a generic message.

SEE ALSO:
  - server.go: Router setup
  - dto.go: Wire shapes
  - scenarios.go: Demo data endpoints
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/warp/arena-ledger/currency"
	"github.com/warp/arena-ledger/ledger"
)

// Resetter clears all stored data. Both store implementations provide it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Logger *log.Logger

	// Auditor is optional; without it RunAudit calls the engine directly.
	Auditor *Auditor
	// Resetter is optional; without it scenarios cannot be loaded.
	Resetter Resetter

	now func() time.Time

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(engine *ledger.Engine, logger *log.Logger) *Handler {
	return &Handler{
		Engine: engine,
		Logger: logger,
		now:    time.Now,
	}
}

// =============================================================================
// PLAYER ENDPOINTS
// =============================================================================

func (h *Handler) ListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.Engine.Players().ListPlayers(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTOs(players))
}

func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req CreatePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var balance currency.Amount
	if len(req.InitialBalance) > 0 {
		if err := balance.UnmarshalJSON(req.InitialBalance); err != nil {
			writeError(w, http.StatusUnprocessableEntity, string(ledger.KindInvalidRequest), err)
			return
		}
	}

	p, err := h.Engine.Players().CreatePlayer(r.Context(), ledger.NewPlayer{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Handed:         parseHanded(req.Handed),
		InitialBalance: balance,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/players/"+string(p.ID))
	writeJSON(w, http.StatusCreated, toPlayerDTO(p))
}

func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.Engine.Players().GetPlayer(r.Context(), playerIDParam(r, "id"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTO(p))
}

func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlayerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	u := ledger.PlayerUpdate{
		Active:    req.IsActive,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.Handed != nil {
		handed := parseHanded(*req.Handed)
		u.Handed = &handed
	}

	p, err := h.Engine.Players().UpdatePlayer(r.Context(), playerIDParam(r, "id"), u)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlayerDTO(p))
}

func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Players().DeletePlayer(r.Context(), playerIDParam(r, "id")); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Engine.Players().Deposit(r.Context(), playerIDParam(r, "id"), req.Amount)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DepositResponse{OldBalance: res.OldBalance, NewBalance: res.NewBalance})
}

// parseHanded normalises shorthand ("L", "Right"). Unknown values pass
// through unchanged so the ledger reports them as a profile error.
func parseHanded(s string) ledger.Handedness {
	if h, ok := ledger.ParseHandedness(s); ok {
		return h
	}
	return ledger.Handedness(s)
}

// =============================================================================
// MATCH ENDPOINTS
// =============================================================================

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.Engine.ListMatches(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	names, err := h.playerNames(r.Context(), matches...)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	now := h.now()
	out := make([]MatchDTO, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchDTO(m, names, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	switch {
	case req.EntryFee == nil:
		h.writeLedgerError(w, r, &ledger.InvalidRequestError{Field: "entry_fee_usd", Reason: "is required"})
		return
	case req.Prize == nil:
		h.writeLedgerError(w, r, &ledger.InvalidRequestError{Field: "prize_usd", Reason: "is required"})
		return
	}

	m, err := h.Engine.CreateMatch(r.Context(), ledger.CreateMatchRequest{
		P1ID:     ledger.PlayerID(req.P1ID),
		P2ID:     ledger.PlayerID(req.P2ID),
		EntryFee: *req.EntryFee,
		Prize:    *req.Prize,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/matches/"+string(m.ID))
	h.writeMatch(w, r, http.StatusCreated, m)
}

func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.GetMatch(r.Context(), matchIDParam(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeMatch(w, r, http.StatusOK, m)
}

var pointsPattern = regexp.MustCompile(`^[0-9]+$`)

func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	var req AwardPointsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !pointsPattern.MatchString(req.Points.String()) {
		writeError(w, http.StatusBadRequest, "points must be a positive integer", nil)
		return
	}
	points, err := strconv.Atoi(req.Points.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "points out of range", err)
		return
	}

	m, err := h.Engine.AwardPoints(r.Context(), matchIDParam(r), playerIDParam(r, "pid"), points)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeMatch(w, r, http.StatusOK, m)
}

func (h *Handler) EndMatch(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.EndMatch(r.Context(), matchIDParam(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeMatch(w, r, http.StatusOK, m)
}

func (h *Handler) Disqualify(w http.ResponseWriter, r *http.Request) {
	m, err := h.Engine.Disqualify(r.Context(), matchIDParam(r), playerIDParam(r, "pid"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	h.writeMatch(w, r, http.StatusOK, m)
}

func (h *Handler) writeMatch(w http.ResponseWriter, r *http.Request, status int, m ledger.Match) {
	names, err := h.playerNames(r.Context(), m)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, status, toMatchDTO(m, names, h.now()))
}

// playerNames resolves display names for every participant. Deleted
// players are left out and show up with an empty name.
func (h *Handler) playerNames(ctx context.Context, matches ...ledger.Match) (map[ledger.PlayerID]string, error) {
	names := make(map[ledger.PlayerID]string)
	for _, m := range matches {
		for _, id := range []ledger.PlayerID{m.P1ID, m.P2ID} {
			if _, seen := names[id]; seen {
				continue
			}
			p, err := h.Engine.Players().GetPlayer(ctx, id)
			switch {
			case errors.Is(err, ledger.ErrNotFound):
				names[id] = ""
			case err != nil:
				return nil, err
			default:
				names[id] = p.Name()
			}
		}
	}
	return names, nil
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RunAudit checks every invariant now. With ?cached=true it returns the
// last scheduled report instead, or 404 if none has run yet.
func (h *Handler) RunAudit(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("cached") == "true" && h.Auditor != nil {
		report, ranAt, ok := h.Auditor.Last()
		if !ok {
			writeError(w, http.StatusNotFound, "No audit has run yet", nil)
			return
		}
		writeJSON(w, http.StatusOK, toAuditReportDTO(report, ranAt))
		return
	}

	var (
		report ledger.AuditReport
		err    error
	)
	if h.Auditor != nil {
		report, err = h.Auditor.RunOnce(r.Context())
	} else {
		report, err = h.Engine.Audit(r.Context())
	}
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditReportDTO(report, h.now()))
}

// Ping is the liveness check.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func playerIDParam(r *http.Request, name string) ledger.PlayerID {
	return ledger.PlayerID(chi.URLParam(r, name))
}

func matchIDParam(r *http.Request) ledger.MatchID {
	return ledger.MatchID(chi.URLParam(r, "id"))
}

// decodeBody decodes a JSON body, rejecting unknown fields so typos in
// field names fail loudly instead of being ignored.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func statusFor(err error) int {
	if errors.Is(err, ledger.ErrInvalidProfile) {
		return http.StatusUnprocessableEntity
	}
	switch ledger.KindOf(err) {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindInvalidRequest:
		return http.StatusBadRequest
	case ledger.KindInsufficientFunds:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError maps a ledger error to its status. Internal errors are
// logged and their details withheld.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		writeError(w, status, "Internal server error", nil)
		return
	}
	writeError(w, status, string(ledger.KindOf(err)), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func notImplemented(w http.ResponseWriter, what string) {
	writeError(w, http.StatusNotImplemented, fmt.Sprintf("%s is not available on this server", what), nil)
}
