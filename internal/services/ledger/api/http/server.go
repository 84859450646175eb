// Package httpapi serves the ledger's JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apperrors "github.com/louisbranch/walletsaga/internal/platform/errors"
	"github.com/louisbranch/walletsaga/internal/services/ledger/coordinator"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/command"
	"github.com/louisbranch/walletsaga/internal/services/ledger/domain/wallet"
	"github.com/louisbranch/walletsaga/internal/services/ledger/service"
	"github.com/louisbranch/walletsaga/internal/services/ledger/storage"
)

const (
	requestTimeout     = 30 * time.Second
	maxBodyBytes       = 1 << 16
	defaultBalanceList = 100
)

// Wallets is the wallet surface the API exposes.
type Wallets interface {
	Fund(ctx context.Context, walletID string, amount int64) (wallet.State, error)
	SettledDeposit(ctx context.Context, walletID string, amount int64) (wallet.State, error)
	SettledWithdraw(ctx context.Context, walletID string, amount int64) (wallet.State, error)
	State(ctx context.Context, walletID string) (wallet.State, error)
	Status(ctx context.Context, walletID string) (service.WalletStatus, error)
}

// Balances answers balance threshold queries.
type Balances interface {
	HigherThan(ctx context.Context, amount int64, limit int) ([]storage.WalletBalance, error)
}

// Config wires the API to its services.
type Config struct {
	Wallets       Wallets
	Balances      Balances
	Choreography  coordinator.TransferCoordinator
	Orchestration coordinator.TransferCoordinator
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type handlers struct {
	wallets       Wallets
	balances      Balances
	choreography  coordinator.TransferCoordinator
	orchestration coordinator.TransferCoordinator
}

// NewHandler builds the API router.
func NewHandler(cfg Config) http.Handler {
	h := &handlers{
		wallets:       cfg.Wallets,
		balances:      cfg.Balances,
		choreography:  cfg.Choreography,
		orchestration: cfg.Orchestration,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(withClientOrigin)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/wallet", func(r chi.Router) {
		r.Get("/balance/higher-than/{amount}", h.balancesHigherThan)
		r.Get("/{id}", h.getWallet)
		r.Get("/{id}/status", h.getWalletStatus)
		r.Post("/{id}/create", h.createWallet)
		r.Post("/{id}/create/{amount}", h.createWallet)
		r.Post("/{id}/deposit/{amount}", h.deposit)
		r.Post("/{id}/withdraw/{amount}", h.withdraw)
	})
	r.Route("/transfer/{id}", func(r chi.Router) {
		r.Post("/", h.startTransfer(h.choreography))
		r.Get("/", h.transferStatus(h.choreography))
		r.Post("/workflow", h.startTransfer(h.orchestration))
		r.Get("/workflow", h.transferStatus(h.orchestration))
	})
	return r
}

// withClientOrigin tags commands issued by a request with the client actor and request id.
func withClientOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := service.WithOrigin(r.Context(), service.Origin{
			ActorType: command.ActorTypeClient,
			RequestID: middleware.GetReqID(r.Context()),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type walletResponse struct {
	WalletID string `json:"walletId"`
	Balance  int64  `json:"balance"`
}

type transactionResponse struct {
	TransactionID string `json:"transactionId"`
	Amount        int64  `json:"amount"`
	Kind          string `json:"kind"`
}

type walletStatusResponse struct {
	WalletID            string                `json:"walletId"`
	Balance             int64                 `json:"balance"`
	ReservedFunds       int64                 `json:"reservedFunds"`
	PendingTransactions []transactionResponse `json:"pendingTransactions"`
}

type balancesResponse struct {
	Wallets []walletResponse `json:"wallets"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

func (h *handlers) getWallet(w http.ResponseWriter, r *http.Request) {
	state, err := h.wallets.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, walletResponse{WalletID: state.WalletID, Balance: state.Balance})
}

func (h *handlers) getWalletStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.wallets.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	pending := make([]transactionResponse, 0, len(status.PendingTransactions))
	for _, tx := range status.PendingTransactions {
		pending = append(pending, transactionResponse{TransactionID: tx.TransactionID, Amount: tx.Amount, Kind: string(tx.Kind)})
	}
	writeJSON(w, http.StatusOK, walletStatusResponse{
		WalletID:            status.WalletID,
		Balance:             status.Balance,
		ReservedFunds:       status.ReservedFunds,
		PendingTransactions: pending,
	})
}

func (h *handlers) createWallet(w http.ResponseWriter, r *http.Request) {
	var amount int64
	if raw := chi.URLParam(r, "amount"); raw != "" {
		parsed, err := parseAmount(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		amount = parsed
	}
	h.respondWallet(w, http.StatusCreated)(h.wallets.Fund(r.Context(), chi.URLParam(r, "id"), amount))
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(chi.URLParam(r, "amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWallet(w, http.StatusOK)(h.wallets.SettledDeposit(r.Context(), chi.URLParam(r, "id"), amount))
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(chi.URLParam(r, "amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWallet(w, http.StatusOK)(h.wallets.SettledWithdraw(r.Context(), chi.URLParam(r, "id"), amount))
}

func (h *handlers) respondWallet(w http.ResponseWriter, status int) func(wallet.State, error) {
	return func(state wallet.State, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, walletResponse{WalletID: state.WalletID, Balance: state.Balance})
	}
}

func (h *handlers) balancesHigherThan(w http.ResponseWriter, r *http.Request) {
	amount, err := strconv.ParseInt(chi.URLParam(r, "amount"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.CodeValidation, "amount must be an integer"))
		return
	}
	balances, err := h.balances.HigherThan(r.Context(), amount, defaultBalanceList)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := balancesResponse{Wallets: make([]walletResponse, 0, len(balances))}
	for _, balance := range balances {
		resp.Wallets = append(resp.Wallets, walletResponse{WalletID: balance.WalletID, Balance: balance.Balance})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) startTransfer(transfers coordinator.TransferCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeValidation, "invalid transfer body", err))
			return
		}
		status, err := transfers.Start(r.Context(), chi.URLParam(r, "id"), coordinator.Transfer{
			Amount:       req.Amount,
			FromWalletID: strings.TrimSpace(req.From),
			ToWalletID:   strings.TrimSpace(req.To),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, status)
	}
}

func (h *handlers) transferStatus(transfers coordinator.TransferCoordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := transfers.Status(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func parseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || amount < 0 {
		return 0, apperrors.New(apperrors.CodeValidation, "amount must be a non-negative integer")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
	}
	if code == apperrors.CodeUnknown {
		log.Printf("request failed: %v", err)
		message = "internal error"
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Code: string(code), Message: message})
}
