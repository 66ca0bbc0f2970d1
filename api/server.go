// Package api exposes the ledger over HTTP. Read endpoints are safe at any
// time, including while a mining pass is in flight; submission endpoints do
// shape validation only and defer to the core's checks.
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/metrics"
	"github.com/osash4/dujyo-ledger/miner"
	"github.com/osash4/dujyo-ledger/stake"
)

// Config wires the server's collaborators.
type Config struct {
	Ledger   *ledger.Ledger
	Registry *stake.Registry
	// Miner, when set, lets POST /api/mine schedule a mining pass instead of
	// running one on the request goroutine.
	Miner  *miner.Worker
	Logger *logrus.Logger
	// Difficulty used when mining synchronously (no worker attached).
	Difficulty int
}

// Server is the HTTP facade over the ledger core.
type Server struct {
	ledger     *ledger.Ledger
	registry   *stake.Registry
	miner      *miner.Worker
	difficulty int
	log        *logrus.Entry
	logger     *logrus.Logger
}

// NewServer creates a server; call Router to obtain the handler.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	difficulty := cfg.Difficulty
	if difficulty < 1 {
		difficulty = 1
	}
	return &Server{
		ledger:     cfg.Ledger,
		registry:   cfg.Registry,
		miner:      cfg.Miner,
		difficulty: difficulty,
		log:        logger.WithField("component", "api"),
		logger:     logger,
	}
}

// Router builds the route table and wraps it with request logging.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	r.HandleFunc("/api/mine", s.handleMine).Methods(http.MethodPost)

	r.HandleFunc("/api/chain", s.handleChain).Methods(http.MethodGet)
	r.HandleFunc("/api/chain/head", s.handleChainHead).Methods(http.MethodGet)
	r.HandleFunc("/api/chain/valid", s.handleChainValid).Methods(http.MethodGet)

	r.HandleFunc("/api/accounts", s.handleAccounts).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts/{address}/balance", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/api/accounts/{address}/transactions", s.handleAccountTransactions).Methods(http.MethodGet)

	if s.registry != nil {
		r.HandleFunc("/api/validators", s.handleAddValidator).Methods(http.MethodPost)
		r.HandleFunc("/api/validators", s.handleListValidators).Methods(http.MethodGet)
		r.HandleFunc("/api/validators/selection", s.handleSelectValidator).Methods(http.MethodGet)
		r.HandleFunc("/api/validators/{address}/slash", s.handleSlashValidator).Methods(http.MethodPost)
	}

	return handlers.LoggingHandler(s.logger.WriterLevel(logrus.DebugLevel), r)
}

// ListenAndServe serves the router on addr, blocking.
func (s *Server) ListenAndServe(addr string) error {
	s.log.WithField("addr", addr).Info("http server listening")
	return http.ListenAndServe(addr, s.Router())
}
