package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mattjoyce/holdline/internal/delegate"
)

// SignatureHeader carries the HMAC-SHA256 of an agent callback body.
const SignatureHeader = "X-Holdline-Signature"

var errBadSignature = errors.New("signature verification failed")

// handleAgentCallback handles POST /api/agents/callback. Agent runners that
// cannot hold a bearer token report status here with a signed body.
func (s *Server) handleAgentCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if err := verifySignature(body, r.Header.Get(SignatureHeader), s.config.CallbackSecret); err != nil {
		s.logger.Warn("agent callback rejected", "remote", r.RemoteAddr)
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var u delegate.AgentUpdate
	if err := json.Unmarshal(body, &u); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	s.applyAgentUpdate(w, r, u)
}

// verifySignature accepts "sha256=<hex>" or bare hex. Every failure returns
// the same error.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errBadSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return errBadSignature
	}

	if subtle.ConstantTimeCompare(computeSignature(body, secret), got) != 1 {
		return errBadSignature
	}
	return nil
}

func computeSignature(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignBody returns the header value an agent runner sends with body.
func SignBody(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(computeSignature(body, secret))
}
