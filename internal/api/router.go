package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all endpoints under /api/v1 plus the operational surface.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	v1.HandleFunc("/accounts/{number}", h.GetAccount).Methods("GET")
	v1.HandleFunc("/accounts/{number}/transactions", h.ListAccountTransactions).Methods("GET")
	v1.HandleFunc("/accounts/{number}/deposit", h.Deposit).Methods("POST")
	v1.HandleFunc("/accounts/{number}/withdraw", h.Withdraw).Methods("POST")
	v1.HandleFunc("/transactions/{reference}", h.GetTransaction).Methods("GET")

	v1.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")

	v1.HandleFunc("/beneficiaries", h.RegisterBeneficiary).Methods("POST")
	v1.HandleFunc("/beneficiaries", h.ListBeneficiaries).Methods("GET")
	v1.HandleFunc("/beneficiaries/{id}/verify", h.VerifyBeneficiary).Methods("POST")

	v1.HandleFunc("/eft/transfers", h.SubmitEFT).Methods("POST")
	v1.HandleFunc("/eft/transfers/{reference}", h.GetEFT).Methods("GET")
	v1.HandleFunc("/eft/transfers/{reference}/cancel", h.CancelEFT).Methods("POST")

	v1.HandleFunc("/qr/requests", h.CreateQRRequest).Methods("POST")
	v1.HandleFunc("/qr/requests/{id}", h.GetQRRequest).Methods("GET")
	v1.HandleFunc("/qr/requests/{id}/pay", h.PayQRRequest).Methods("POST")
	v1.HandleFunc("/qr/requests/{id}/cancel", h.CancelQRRequest).Methods("POST")
	v1.HandleFunc("/qr/payments/{reference}", h.GetQRPayment).Methods("GET")

	v1.HandleFunc("/upi/handles", h.RegisterUPIHandle).Methods("POST")
	v1.HandleFunc("/upi/handles", h.ListUPIHandles).Methods("GET")
	v1.HandleFunc("/upi/handles/{handle}/primary", h.SetPrimaryUPIHandle).Methods("POST")
	v1.HandleFunc("/upi/pay", h.PayUPI).Methods("POST")

	return r
}
