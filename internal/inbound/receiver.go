// Package inbound brings mail from outside systems into identities' inboxes.
package inbound

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/entity"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/model"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/relay"
	"github.com/mrzeku2000XTTT/FluxKmail/internal/validate"
)

const (
	// VerificationSender is the from_address of PIN messages.
	VerificationSender = "ttt-verification-system"

	defaultFromName = "TTT Verification <ttt@fluxk.kas>"

	// maxBodyBytes bounds a request body.
	maxBodyBytes = 1 << 20
)

type reply struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Receiver is an http.Handler accepting verification messages from trusted
// services and filing them into the recipient's inbox.
type Receiver struct {
	store  entity.Store
	apiKey string
	mux    *http.ServeMux
}

// NewReceiver returns a Receiver writing to store. Requests must carry
// apiKey in the X-API-Key header; an empty apiKey rejects every request.
func NewReceiver(store entity.Store, apiKey string) *Receiver {
	r := &Receiver{store: store, apiKey: apiKey}
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", r.handleInbound)
	mux.HandleFunc("/health", r.handleHealth)
	r.mux = mux
	return r
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Receiver) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, reply{Status: "ok"})
}

func (r *Receiver) handleInbound(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, reply{Status: "error", Message: "method not allowed"})
		return
	}

	if !r.authorized(req.Header.Get("X-API-Key")) {
		logrus.WithField("remote", req.RemoteAddr).Warn("inbound request with bad api key")
		respondJSON(w, http.StatusUnauthorized, reply{
			Status:  "error",
			Message: "Unauthorized: Invalid or missing API key",
		})
		return
	}

	var p relay.Payload
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(&p); err != nil {
		respondJSON(w, http.StatusBadRequest, reply{Status: "error", Message: "invalid JSON"})
		return
	}
	p.RecipientWalletAddress = strings.TrimSpace(p.RecipientWalletAddress)
	if err := validate.Struct(p); err != nil || strings.TrimSpace(p.PinCode) == "" {
		respondJSON(w, http.StatusBadRequest, reply{
			Status:  "error",
			Message: "Missing required fields: recipientWalletAddress, pinCode, subject, body",
		})
		return
	}

	rec, err := entity.Encode(verificationEmail(p))
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, reply{Status: "error", Message: err.Error()})
		return
	}
	delete(rec, "id")
	delete(rec, "created_at")
	rec["value_transferred"] = nil

	if _, err := r.store.Create(req.Context(), entity.KindEmail, rec); err != nil {
		logrus.WithError(err).WithField("to", p.RecipientWalletAddress).Error("storing inbound message")
		respondJSON(w, http.StatusInternalServerError, reply{Status: "error", Message: storeMessage(err)})
		return
	}

	logrus.WithField("to", p.RecipientWalletAddress).Info("verification message received")
	respondJSON(w, http.StatusOK, reply{
		Status:  "success",
		Message: "Verification PIN email sent to Fluxkmail inbox.",
	})
}

func (r *Receiver) authorized(key string) bool {
	if r.apiKey == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(r.apiKey)) == 1
}

func verificationEmail(p relay.Payload) model.Email {
	fromName := p.FromName
	if fromName == "" {
		fromName = defaultFromName
	}
	return model.Email{
		FromAddress:     VerificationSender,
		FromDisplayName: fromName,
		ToAddress:       p.RecipientWalletAddress,
		Subject:         p.Subject,
		Body:            p.Body,
		Preview:         "Your verification PIN: " + p.PinCode,
		Folder:          model.FolderInbox,
		OwnerAddress:    p.RecipientWalletAddress,
	}
}

func storeMessage(err error) string {
	var rejected *entity.RejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}
	return "Internal server error"
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
