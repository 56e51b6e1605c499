// Package rpc exposes the transaction service over a small chi-routed JSON
// HTTP surface, per SPEC_FULL.md §6: this stands in for "the FFI surface
// exposed to a UI layer" spec.md §1 names out of scope, and is the Go-native
// boundary such an FFI layer would sit behind, not the FFI layer itself.
package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/mempool"
	"github.com/meridian-chain/meridian-node/internal/types"
)

var errTxNotFound = errors.New("transaction not found in mempool or chain")

// TxService is the subset of txservice.Service the RPC surface calls into.
type TxService interface {
	Submit(tx *core.Transaction) error
	GetBalance(addr types.Address) (uint64, error)
	GetTransactionHistory(addr types.Address) []*core.Transaction
}

// MempoolLookup is the subset of mempool.Mempool used to answer /tx/{id} for
// still-pending transactions.
type MempoolLookup interface {
	Get(txID types.Hash) (*mempool.Entry, bool)
}

// ChainLookup is the subset of chainstore.Store used to answer /tx/{id} once
// a transaction has left the mempool.
type ChainLookup interface {
	GetBlockForTx(txid types.Hash) (*core.Block, error)
	GetTransaction(id types.Hash) (*core.Transaction, error)
}

// Server wires the transaction service, mempool, and chain store behind the
// HTTP handlers of spec.md §4.6's external API.
type Server struct {
	txsvc TxService
	pool  MempoolLookup
	chain ChainLookup
	log   *logrus.Entry
}

// NewServer constructs a Server. pool and chain may be nil if their
// corresponding lookups are unavailable (e.g. in tests); the handlers
// degrade gracefully.
func NewServer(txsvc TxService, pool MempoolLookup, chain ChainLookup, log *logrus.Entry) *Server {
	return &Server{txsvc: txsvc, pool: pool, chain: chain, log: log}
}

// Router builds the chi router exposing POST /tx, GET /tx/{id},
// GET /balance/{addr}, GET /history/{addr}.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.logRequest)
	r.Post("/tx", s.postTx)
	r.Get("/tx/{id}", s.getTx)
	r.Get("/balance/{addr}", s.getBalance)
	r.Get("/history/{addr}", s.getHistory)
	return r
}

// logRequest mirrors the teacher's walletserver request-logging middleware,
// generalized from an unconditional logrus call to this server's injected
// *logrus.Entry.
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if s.log != nil {
			s.log.WithField("duration", time.Since(start)).Infof("%s %s", r.Method, r.RequestURI)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) postTx(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.txsvc.Submit(&tx); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": tx.ID.String()})
}

func (s *Server) getTx(w http.ResponseWriter, r *http.Request) {
	id, err := parseHash(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.pool != nil {
		if entry, ok := s.pool.Get(id); ok {
			writeJSON(w, http.StatusOK, map[string]any{"status": "pending", "transaction": entry.Tx})
			return
		}
	}
	if s.chain != nil {
		if block, err := s.chain.GetBlockForTx(id); err == nil && block != nil {
			resp := map[string]any{"status": "confirmed", "height": block.Header.Index}
			if tx, err := s.chain.GetTransaction(id); err == nil {
				resp["transaction"] = tx
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	writeError(w, http.StatusNotFound, errTxNotFound)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.AddressFromBase58(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	balance, err := s.txsvc.GetBalance(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	addr, err := crypto.AddressFromBase58(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.txsvc.GetTransactionHistory(addr))
}

func parseHash(s string) (types.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return types.Hash{}, err
	}
	return types.HashFromBytes(b), nil
}
