package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/coder/websocket"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gaspardpetit/qscore/internal/entry"
	"github.com/gaspardpetit/qscore/internal/logx"
	"github.com/gaspardpetit/qscore/internal/metrics"
	"github.com/gaspardpetit/qscore/internal/serverstate"
	"github.com/gaspardpetit/qscore/internal/wire"
)

const (
	transportHTTP = "http"
	transportWS   = "ws"
)

// statusFor maps a wire error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case wire.CodeDecode:
		return http.StatusBadRequest
	case wire.CodeUnavailable:
		return http.StatusServiceUnavailable
	case wire.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logx.Log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, transport string, err error) {
	code := wire.ErrorCode(err)
	metrics.RecordRequest(transport, code, 0)
	writeJSON(w, statusFor(code), wire.EncodeError(err))
}

// score decodes and dispatches one request body.
func (a *API) score(ctx context.Context, body []byte) (entry.Request, entry.Scores, error) {
	req, err := wire.DecodeRequest(body)
	if err != nil {
		return req, nil, err
	}
	scores, err := a.disp.Dispatch(ctx, req)
	return req, scores, err
}

func (a *API) handleScore(w http.ResponseWriter, r *http.Request) {
	if serverstate.IsDraining() {
		writeError(w, transportHTTP, wire.ErrUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(a.opts.MaxBodyBytes)))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = &entry.DecodeError{Reason: "request body too large", Err: err}
		} else {
			err = &entry.DecodeError{Reason: "read body", Err: err}
		}
		writeError(w, transportHTTP, err)
		return
	}
	req, scores, err := a.score(r.Context(), body)
	if err != nil {
		logx.Log.Warn().Str("request_id", chiMiddleware.GetReqID(r.Context())).Str("code", wire.ErrorCode(err)).Err(err).Msg("score request failed")
		writeError(w, transportHTTP, err)
		return
	}
	out, err := wire.EncodeScores(scores)
	if err != nil {
		writeError(w, transportHTTP, err)
		return
	}
	metrics.RecordRequest(transportHTTP, "success", len(req.Documents))
	writeJSON(w, http.StatusOK, out)
}

// handleScoreWS serves a WebSocket session: each text message is a request
// body and is answered by one response body. As on TCP, any error is
// reported and ends the session.
func (a *API) handleScoreWS(w http.ResponseWriter, r *http.Request) {
	if a.closing.Load() || serverstate.IsDraining() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: a.opts.AllowedOrigins})
	if err != nil {
		return
	}
	s := &wsSession{conn: c}
	a.trackSession(s)
	defer a.untrackSession(s)
	c.SetReadLimit(int64(a.opts.MaxBodyBytes))
	log := logx.Log.With().Str("session_id", uuid.NewString()).Str("remote_addr", r.RemoteAddr).Logger()
	log.Debug().Msg("websocket session opened")
	metrics.ConnOpened()
	defer metrics.ConnClosed()

	ctx := a.ctx
	for {
		s.phase.Store(phaseIdle)
		if a.closing.Load() {
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		typ, data, err := c.Read(ctx)
		if !s.phase.CompareAndSwap(phaseIdle, phaseActive) {
			// closed by Shutdown
			log.Debug().Msg("websocket session closed for shutdown")
			return
		}
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				log.Debug().Msg("websocket session closed")
			} else {
				log.Debug().Err(err).Msg("websocket read")
			}
			_ = c.CloseNow()
			return
		}
		if typ != websocket.MessageText {
			_ = c.Close(websocket.StatusUnsupportedData, "expected text message")
			return
		}
		if a.closing.Load() || serverstate.IsDraining() {
			a.fail(ctx, c, wire.ErrUnavailable)
			return
		}
		req, scores, err := a.score(ctx, data)
		if err == nil {
			var out []byte
			if out, err = wire.EncodeScores(scores); err == nil {
				if err := c.Write(ctx, websocket.MessageText, out); err != nil {
					log.Debug().Err(err).Msg("websocket write")
					_ = c.CloseNow()
					return
				}
				metrics.RecordRequest(transportWS, "success", len(req.Documents))
				continue
			}
		}
		log.Warn().Str("code", wire.ErrorCode(err)).Err(err).Msg("score request failed")
		a.fail(ctx, c, err)
		return
	}
}

func (a *API) fail(ctx context.Context, c *websocket.Conn, err error) {
	code := wire.ErrorCode(err)
	metrics.RecordRequest(transportWS, code, 0)
	_ = c.Write(ctx, websocket.MessageText, wire.EncodeError(err))
	status := websocket.StatusInternalError
	switch code {
	case wire.CodeDecode:
		status = websocket.StatusPolicyViolation
	case wire.CodeUnavailable:
		status = websocket.StatusGoingAway
	}
	_ = c.Close(status, code)
}
