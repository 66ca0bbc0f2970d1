package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/metrics"
	"github.com/osash4/dujyo-ledger/stake"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports degraded when the chain no longer verifies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.ledger.IsChainValid() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded", "reason": "chain validation failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmitTransaction accepts a full transaction document. Clients that
// sign locally submit their own timestamp and nonce; the ID is assigned here
// when absent.
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx ledger.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = time.Now().UnixMilli()
	}
	if tx.Kind == "" {
		tx.Kind = ledger.KindTransfer
	}
	if tx.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if tx.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}
	if tx.Sender == tx.Recipient {
		writeError(w, http.StatusBadRequest, "sender and recipient are the same address")
		return
	}
	if tx.Amount > math.MaxInt64 {
		writeError(w, http.StatusBadRequest, "amount overflows balance arithmetic")
		return
	}
	switch tx.Kind {
	case ledger.KindTransfer:
	case ledger.KindContentRegistration, ledger.KindContentLicense, ledger.KindStreamReward:
		if tx.Payload == nil {
			writeError(w, http.StatusBadRequest, string(tx.Kind)+" requires a payload")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown transaction kind "+string(tx.Kind))
		return
	}

	if err := s.ledger.AddTransaction(&tx); err != nil {
		metrics.Transactions.WithLabelValues("rejected").Inc()
		s.log.WithError(err).WithField("tx", tx.ID).Warn("transaction rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	metrics.Transactions.WithLabelValues("accepted").Inc()
	metrics.MempoolDepth.Set(float64(s.ledger.PendingCount()))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "pending",
		"id":     tx.ID,
		"hash":   tx.ComputeHash(),
	})
}

// handleMine schedules a mining pass on the worker, or runs one inline when
// no worker is attached (tests, single-shot tools).
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if s.miner != nil {
		s.miner.Flush()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	block, err := s.ledger.MinePending(ctx, s.difficulty, "")
	if err != nil {
		if errors.Is(err, ledger.ErrNoPendingTransactions) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "mined",
		"height": s.ledger.Height(),
		"hash":   block.Hash,
	})
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"height": s.ledger.Height(),
		"blocks": s.ledger.Chain(),
	})
}

func (s *Server) handleChainHead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.LatestBlock())
}

func (s *Server) handleChainValid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"valid": s.ledger.IsChainValid()})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"accounts": s.ledger.Accounts()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"balance": s.ledger.Balance(address),
	})
}

func (s *Server) handleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	txs := s.ledger.TransactionsFor(address)
	if txs == nil {
		txs = []*ledger.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      address,
		"transactions": txs,
	})
}

type addValidatorRequest struct {
	Address string `json:"address"`
	Stake   uint64 `json:"stake"`
}

func (s *Server) handleAddValidator(w http.ResponseWriter, r *http.Request) {
	var req addValidatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if err := s.registry.Add(req.Address, req.Stake); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"address": req.Address, "stake": req.Stake})
}

func (s *Server) handleListValidators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"validators": s.registry.Validators()})
}

func (s *Server) handleSelectValidator(w http.ResponseWriter, r *http.Request) {
	v, err := s.registry.Select()
	if err != nil {
		if errors.Is(err, stake.ErrNoEligibleValidator) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type slashRequest struct {
	Reason stake.SlashReason `json:"reason"`
}

func (s *Server) handleSlashValidator(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	var req slashRequest
	if r.Body != nil {
		// Body is optional; a bare POST slashes with an unspecified reason.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = stake.ReasonUnspecified
	}
	if err := s.registry.SlashFor(address, req.Reason); err != nil {
		if errors.Is(err, stake.ErrValidatorNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address, "status": "slashed"})
}
