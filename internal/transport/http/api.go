// Package http exposes the room lifecycle as a JSON API plus a websocket
// feed of room snapshots. It owns the error-code mapping and the
// cross-cutting rate limit; all game semantics live in internal/app.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
)

const maxBodyBytes = 64 << 10

// Limiter is the request-budget check applied to every operation. The redis
// implementation shares the budget across instances; the memory one serves
// single-node deployments and tests.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, time.Duration, error)
}

// API routes room operations to the service.
type API struct {
	service *app.RoomService
	limiter Limiter
}

func NewAPI(service *app.RoomService, limiter Limiter) *API {
	return &API{service: service, limiter: limiter}
}

// Register attaches all routes to the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("POST /api/rooms", a.limited(a.handleCreateRoom))
	mux.Handle("POST /api/rooms/join", a.limited(a.handleJoinRoom))
	mux.Handle("GET /api/rooms/{code}", a.limited(a.handleRoomState))
	mux.Handle("POST /api/rooms/{code}/start", a.limited(a.handleStartGame))
	mux.Handle("POST /api/rooms/{code}/answer", a.limited(a.handleSubmitAnswer))
	mux.Handle("POST /api/rooms/{code}/next", a.limited(a.handleNextQuestion))
	mux.Handle("GET /api/rooms/{code}/question", a.limited(a.handleCurrentQuestion))
	mux.Handle("POST /api/rooms/{code}/leave", a.limited(a.handleLeaveRoom))
}

// limited wraps a handler with the per-client rate limit.
func (a *API) limited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter != nil {
			ok, retryAfter, err := a.limiter.Allow(r.Context(), clientID(r))
			if err != nil {
				log.Printf("rate limiter unavailable: %v", err)
			} else if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				writeError(w, domain.ErrRateLimited)
				return
			}
		}
		next(w, r)
	})
}

type createRoomRequest struct {
	HostName string         `json:"hostName"`
	Avatar   string         `json:"avatar"`
	Config   app.RoomConfig `json:"config"`
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.CreateRoom(r.Context(), req.HostName, req.Avatar, req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type joinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.JoinRoom(r.Context(), req.RoomCode, req.Name, req.Avatar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRoomState(w http.ResponseWriter, r *http.Request) {
	snap, err := a.service.RoomState(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type playerRequest struct {
	PlayerID string `json:"playerId"`
}

func (a *API) handleStartGame(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.StartGame(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type submitAnswerRequest struct {
	PlayerID string `json:"playerId"`
	Answer   int    `json:"answer"`
	TimeMs   int    `json:"timeMs"`
}

func (a *API) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), r.PathValue("code"), req.PlayerID, req.Answer, req.TimeMs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.NextQuestion(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	result, err := a.service.CurrentQuestion(r.Context(), r.PathValue("code"), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.LeaveRoom(r.Context(), r.PathValue("code"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", domain.ErrValidation))
		return false
	}
	return true
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError translates domain errors into stable machine-readable codes.
// Anything unrecognized is logged with full context and surfaced sanitized.
func writeError(w http.ResponseWriter, err error) {
	code, status := "INTERNAL_SERVER_ERROR", http.StatusInternalServerError
	message := err.Error()
	switch {
	case errors.Is(err, domain.ErrValidation):
		code, status = "VALIDATION_ERROR", http.StatusBadRequest
	case errors.Is(err, domain.ErrRoomNotFound), errors.Is(err, domain.ErrPlayerNotFound):
		code, status = "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull):
		code, status = "ROOM_FULL", http.StatusConflict
	case errors.Is(err, domain.ErrRoomState), errors.Is(err, domain.ErrQuestionSetEmpty):
		code, status = "ROOM_ERROR", http.StatusConflict
	case errors.Is(err, domain.ErrNotHost):
		code, status = "AUTHORIZATION_ERROR", http.StatusForbidden
	case errors.Is(err, domain.ErrCodeConflict):
		code, status = "CONFLICT", http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		code, status = "RATE_LIMITED", http.StatusTooManyRequests
	default:
		log.Printf("internal error: %v", err)
		message = "internal server error"
	}
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
