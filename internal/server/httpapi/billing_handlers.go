package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/plans"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

type plansResponse struct {
	KeyID string       `json:"keyId"`
	Plans []plans.Plan `json:"plans"`
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, plansResponse{KeyID: s.opts.KeyID, Plans: s.billing.Plans()})
}

type createOrderRequest struct {
	Plan string `json:"plan"`
}

// handleCreateOrder answers with the gateway order object unchanged.
func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Plan) == "" {
		s.writeError(w, r, common.ErrInvalidPlan)
		return
	}

	checkout, err := s.billing.CreateOrder(r.Context(), strings.TrimSpace(req.Plan), accountIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout.Order)
}

type verifyRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type verifyResponse struct {
	Success bool            `json:"success"`
	Payment *models.Payment `json:"payment"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		s.writeError(w, r, fmt.Errorf("%w: orderId, paymentId and signature are required", common.ErrorValidation))
		return
	}

	payment, err := s.billing.VerifyAndSettle(r.Context(), accountIDFrom(r.Context()), services.VerifyRequest{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		Amount:    req.Amount,
		Currency:  req.Currency,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Success: true, Payment: payment})
}

type historyResponse struct {
	Payments []*models.Payment `json:"payments"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.billing.History(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Payment{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Payments: list})
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportPayments buffers the workbook so a failure can still be
// reported as JSON.
func (s *Server) handleExportPayments(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.billing.ExportPayments(r.Context(), &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := "payments-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
