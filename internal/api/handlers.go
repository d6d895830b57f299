package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/anirudhbs/corebank/internal/domain"
	"github.com/anirudhbs/corebank/internal/eft"
	"github.com/anirudhbs/corebank/internal/idempotency"
	"github.com/anirudhbs/corebank/internal/ledger"
	"github.com/anirudhbs/corebank/internal/qr"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corebank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corebank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	ledger *ledger.Service
	eft    *eft.Service
	qr     *qr.Service
	guard  *idempotency.Guard
}

func NewHandler(ldg *ledger.Service, eftSvc *eft.Service, qrSvc *qr.Service, guard *idempotency.Guard) *Handler {
	return &Handler{ledger: ldg, eft: eftSvc, qr: qrSvc, guard: guard}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Accounts ---

type createAccountRequest struct {
	Currency       string `json:"currency"`
	MinimumBalance int64  `json:"minimum_balance"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/accounts", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Currency == "" {
		req.Currency = "INR"
	}
	if req.MinimumBalance < 0 {
		h.fail(w, r, "/accounts", http.StatusUnprocessableEntity, "Negative minimum balance")
		return
	}

	acct, err := h.ledger.OpenAccount(r.Context(), req.Currency, req.MinimumBalance)
	if err != nil {
		h.serviceError(w, r, "/accounts", err)
		return
	}
	h.ok(w, r, "/accounts", http.StatusCreated, acct)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	acct, err := h.ledger.GetAccount(r.Context(), number)
	if err != nil {
		h.serviceError(w, r, "/accounts/{number}", err)
		return
	}
	h.ok(w, r, "/accounts/{number}", http.StatusOK, acct)
}

func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	// Existence check so an unknown account is a 404, not an empty list.
	if _, err := h.ledger.GetAccount(r.Context(), number); err != nil {
		h.serviceError(w, r, "/accounts/{number}/transactions", err)
		return
	}
	txs, err := h.ledger.ListTransactions(r.Context(), number, limit, offset)
	if err != nil {
		h.serviceError(w, r, "/accounts/{number}/transactions", err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	h.ok(w, r, "/accounts/{number}/transactions", http.StatusOK, txs)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	tx, err := h.ledger.GetTransaction(r.Context(), reference)
	if err != nil {
		h.serviceError(w, r, "/transactions/{reference}", err)
		return
	}
	h.ok(w, r, "/transactions/{reference}", http.StatusOK, tx)
}

type movementRequest struct {
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/accounts/{number}/deposit", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	tx, err := h.ledger.Credit(r.Context(), ledger.Entry{
		AccountNumber: number,
		Amount:        req.Amount,
		Type:          domain.TxDeposit,
		Category:      req.Category,
		Description:   req.Description,
	})
	if err != nil {
		h.serviceError(w, r, "/accounts/{number}/deposit", err)
		return
	}
	h.ok(w, r, "/accounts/{number}/deposit", http.StatusCreated, tx)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/accounts/{number}/withdraw", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	tx, err := h.ledger.Debit(r.Context(), ledger.Entry{
		AccountNumber: number,
		Amount:        req.Amount,
		Type:          domain.TxWithdrawal,
		Category:      req.Category,
		Description:   req.Description,
	})
	if err != nil {
		h.serviceError(w, r, "/accounts/{number}/withdraw", err)
		return
	}
	h.ok(w, r, "/accounts/{number}/withdraw", http.StatusCreated, tx)
}

// --- Transfers ---

type transferRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      int64  `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

type transferResponse struct {
	Debit  *domain.Transaction `json:"debit"`
	Credit *domain.Transaction `json:"credit"`
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	h.idempotent(w, r, "/transfers", func(r *http.Request, body []byte) (int, any, error) {
		var req transferRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, errBadJSON
		}
		if req.Amount <= 0 {
			return 0, nil, domain.ErrInvalidAmount
		}
		if req.FromAccount == req.ToAccount {
			return 0, nil, domain.ErrSameAccount
		}

		debit, credit, err := h.ledger.Transfer(r.Context(), req.FromAccount, req.ToAccount, req.Amount, req.Category, req.Description)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, transferResponse{Debit: debit, Credit: credit}, nil
	})
}

// --- Beneficiaries ---

type beneficiaryRequest struct {
	CustomerID    string `json:"customer_id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	RoutingCode   string `json:"routing_code"`
}

func (h *Handler) RegisterBeneficiary(w http.ResponseWriter, r *http.Request) {
	var req beneficiaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/beneficiaries", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.CustomerID == "" || req.Name == "" || req.AccountNumber == "" {
		h.fail(w, r, "/beneficiaries", http.StatusUnprocessableEntity, "customer_id, name and account_number are required")
		return
	}

	b, err := h.eft.RegisterBeneficiary(r.Context(), req.CustomerID, req.Name, req.AccountNumber, req.RoutingCode)
	if err != nil {
		h.serviceError(w, r, "/beneficiaries", err)
		return
	}
	h.ok(w, r, "/beneficiaries", http.StatusCreated, b)
}

func (h *Handler) VerifyBeneficiary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.fail(w, r, "/beneficiaries/{id}/verify", http.StatusBadRequest, "Invalid beneficiary id")
		return
	}
	b, err := h.eft.VerifyBeneficiary(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, "/beneficiaries/{id}/verify", err)
		return
	}
	h.ok(w, r, "/beneficiaries/{id}/verify", http.StatusOK, b)
}

func (h *Handler) ListBeneficiaries(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		h.fail(w, r, "/beneficiaries", http.StatusBadRequest, "customer_id query parameter is required")
		return
	}
	bs, err := h.eft.ListBeneficiaries(r.Context(), customerID)
	if err != nil {
		h.serviceError(w, r, "/beneficiaries", err)
		return
	}
	if bs == nil {
		bs = []*domain.Beneficiary{}
	}
	h.ok(w, r, "/beneficiaries", http.StatusOK, bs)
}

// --- EFT ---

type eftSubmitRequest struct {
	SourceAccount string `json:"source_account"`
	BeneficiaryID int64  `json:"beneficiary_id"`
	Rail          string `json:"rail"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
}

func (h *Handler) SubmitEFT(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/eft/transfers"))
	defer timer.ObserveDuration()

	h.idempotent(w, r, "/eft/transfers", func(r *http.Request, body []byte) (int, any, error) {
		var req eftSubmitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, errBadJSON
		}

		out, err := h.eft.Submit(r.Context(), eft.SubmitRequest{
			SourceAccount: req.SourceAccount,
			BeneficiaryID: req.BeneficiaryID,
			Rail:          domain.Rail(req.Rail),
			Amount:        req.Amount,
			Description:   req.Description,
		})
		if err != nil {
			// A settlement failure after the debit still has a record worth
			// returning; the compensating credit has already restored funds.
			if errors.Is(err, domain.ErrSettlementFailure) && out != nil {
				return http.StatusBadGateway, out, nil
			}
			return 0, nil, err
		}
		status := http.StatusCreated
		if out.Status == domain.EFTQueued {
			status = http.StatusAccepted
		}
		return status, out, nil
	})
}

func (h *Handler) GetEFT(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	out, err := h.eft.Get(r.Context(), reference)
	if err != nil {
		h.serviceError(w, r, "/eft/transfers/{reference}", err)
		return
	}
	h.ok(w, r, "/eft/transfers/{reference}", http.StatusOK, out)
}

func (h *Handler) CancelEFT(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	out, err := h.eft.Cancel(r.Context(), reference)
	if err != nil {
		h.serviceError(w, r, "/eft/transfers/{reference}/cancel", err)
		return
	}
	h.ok(w, r, "/eft/transfers/{reference}/cancel", http.StatusOK, out)
}

// --- QR / UPI ---

type qrCreateRequest struct {
	ReceiverAccount string `json:"receiver_account"`
	Amount          int64  `json:"amount"`
	ExpiresIn       int64  `json:"expires_in_seconds"`
	Description     string `json:"description"`
}

func (h *Handler) CreateQRRequest(w http.ResponseWriter, r *http.Request) {
	var req qrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/qr/requests", http.StatusBadRequest, "Malformed JSON body")
		return
	}

	out, err := h.qr.CreateRequest(r.Context(), req.ReceiverAccount, req.Amount, time.Duration(req.ExpiresIn)*time.Second, req.Description)
	if err != nil {
		h.serviceError(w, r, "/qr/requests", err)
		return
	}
	h.ok(w, r, "/qr/requests", http.StatusCreated, out)
}

func (h *Handler) GetQRRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	out, err := h.qr.GetRequest(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, "/qr/requests/{id}", err)
		return
	}
	h.ok(w, r, "/qr/requests/{id}", http.StatusOK, out)
}

func (h *Handler) CancelQRRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	out, err := h.qr.CancelRequest(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, "/qr/requests/{id}/cancel", err)
		return
	}
	h.ok(w, r, "/qr/requests/{id}/cancel", http.StatusOK, out)
}

type qrPayRequest struct {
	PayerAccount string `json:"payer_account"`
}

func (h *Handler) PayQRRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["id"]
	h.idempotent(w, r, "/qr/requests/{id}/pay", func(r *http.Request, body []byte) (int, any, error) {
		var req qrPayRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, errBadJSON
		}
		out, err := h.qr.PayRequest(r.Context(), requestID, req.PayerAccount)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, out, nil
	})
}

func (h *Handler) GetQRPayment(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]
	out, err := h.qr.GetPayment(r.Context(), reference)
	if err != nil {
		h.serviceError(w, r, "/qr/payments/{reference}", err)
		return
	}
	h.ok(w, r, "/qr/payments/{reference}", http.StatusOK, out)
}

type upiHandleRequest struct {
	Handle        string `json:"handle"`
	OwnerID       string `json:"owner_id"`
	AccountNumber string `json:"account_number"`
	Primary       bool   `json:"primary"`
}

func (h *Handler) RegisterUPIHandle(w http.ResponseWriter, r *http.Request) {
	var req upiHandleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/upi/handles", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Handle == "" || req.OwnerID == "" || req.AccountNumber == "" {
		h.fail(w, r, "/upi/handles", http.StatusUnprocessableEntity, "handle, owner_id and account_number are required")
		return
	}

	out, err := h.qr.RegisterHandle(r.Context(), req.Handle, req.OwnerID, req.AccountNumber, req.Primary)
	if err != nil {
		h.serviceError(w, r, "/upi/handles", err)
		return
	}
	h.ok(w, r, "/upi/handles", http.StatusCreated, out)
}

func (h *Handler) ListUPIHandles(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		h.fail(w, r, "/upi/handles", http.StatusBadRequest, "owner_id query parameter is required")
		return
	}
	hs, err := h.qr.ListHandles(r.Context(), ownerID)
	if err != nil {
		h.serviceError(w, r, "/upi/handles", err)
		return
	}
	if hs == nil {
		hs = []*domain.UPIHandle{}
	}
	h.ok(w, r, "/upi/handles", http.StatusOK, hs)
}

type upiPrimaryRequest struct {
	OwnerID string `json:"owner_id"`
}

func (h *Handler) SetPrimaryUPIHandle(w http.ResponseWriter, r *http.Request) {
	handle := mux.Vars(r)["handle"]
	var req upiPrimaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, "/upi/handles/{handle}/primary", http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := h.qr.SetPrimaryHandle(r.Context(), req.OwnerID, handle); err != nil {
		h.serviceError(w, r, "/upi/handles/{handle}/primary", err)
		return
	}
	h.ok(w, r, "/upi/handles/{handle}/primary", http.StatusOK, map[string]string{"handle": handle, "primary": "true"})
}

type upiPayRequest struct {
	PayerAccount string `json:"payer_account"`
	Handle       string `json:"handle"`
	Amount       int64  `json:"amount"`
}

func (h *Handler) PayUPI(w http.ResponseWriter, r *http.Request) {
	h.idempotent(w, r, "/upi/pay", func(r *http.Request, body []byte) (int, any, error) {
		var req upiPayRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return http.StatusBadRequest, nil, errBadJSON
		}
		out, err := h.qr.PayUPI(r.Context(), req.PayerAccount, req.Handle, req.Amount)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, out, nil
	})
}

// --- Plumbing ---

var errBadJSON = errors.New("malformed JSON body")

// idempotent runs the operation under the idempotency guard. The guard
// replays a completed response for a reused key with an identical body and
// rejects reuse with a different body.
func (h *Handler) idempotent(w http.ResponseWriter, r *http.Request, endpoint string, op func(r *http.Request, body []byte) (int, any, error)) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		h.fail(w, r, endpoint, http.StatusBadRequest, "Missing Idempotency-Key header")
		return
	}

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, endpoint, http.StatusInternalServerError, "Stream read error")
		return
	}
	reqHash := idempotency.HashRequest(bodyBytes)

	status, respBody, replayed, err := h.guard.Execute(r.Context(), key, reqHash, "", func(ctx context.Context) (int, []byte, error) {
		status, payload, err := op(r.WithContext(ctx), bodyBytes)
		if err != nil {
			return 0, nil, err
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		return status, b, nil
	})
	if err != nil {
		if errors.Is(err, errBadJSON) {
			h.fail(w, r, endpoint, http.StatusBadRequest, "Malformed JSON body")
			return
		}
		h.serviceError(w, r, endpoint, err)
		return
	}

	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	if replayed {
		w.Header().Set("Idempotency-Replayed", "true")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(respBody)
}

// serviceError maps domain sentinels onto HTTP status codes.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrBeneficiaryNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrHandleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrIdempotencyInProgress),
		errors.Is(err, domain.ErrRequestAlreadySettled),
		errors.Is(err, domain.ErrHandleTaken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRequestExpired):
		status = http.StatusGone
	case errors.Is(err, domain.ErrSettlementFailure):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrAccountNotActive),
		errors.Is(err, domain.ErrUnknownRail),
		errors.Is(err, domain.ErrBeneficiaryNotEligible),
		errors.Is(err, domain.ErrTransferNotCancellable),
		errors.Is(err, domain.ErrRequestNotPayable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrIdempotencyConflict):
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal Server Error"
	}
	h.fail(w, r, endpoint, status, message)
}

func (h *Handler) ok(w http.ResponseWriter, r *http.Request, endpoint string, status int, payload any) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	respondWithJSON(w, status, payload)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, endpoint string, status int, message string) {
	httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
	respondWithError(w, status, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
