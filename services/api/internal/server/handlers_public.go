package server

import (
	"net/http"

	"taravani/internal/security"
	"taravani/pkg/intake"
)

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.submitLimiter, "too many submissions, please try again later") {
		return
	}
	var req intake.ReadingPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	reading, err := s.app.CreateSubmission(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": reading.ID})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.paymentLimiter, "too many payment attempts, please try again later") {
		return
	}
	var req intake.ReadingPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := s.app.CreateOrder(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"orderId":   order.OrderID,
		"amount":    order.Amount,
		"currency":  order.Currency,
		"key":       order.Key,
		"readingId": order.ReadingID,
	})
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.paymentLimiter, "too many payment attempts, please try again later") {
		return
	}
	var req intake.PaymentPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	reading, err := s.app.VerifyPayment(r.Context(), req)
	if err != nil {
		if _, ok := intake.AsValidation(err); !ok {
			s.audit(r, security.EventPaymentVerify, "fail", "reading_id", req.ReadingID)
		}
		writeAppError(w, r, err, false)
		return
	}
	s.audit(r, security.EventPaymentVerify, "success", "reading_id", reading.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"readingId": reading.ID,
		"message":   "Payment verified successfully",
	})
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.contactLimiter, "too many messages, please try again later") {
		return
	}
	var req intake.ContactPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := s.app.SubmitContact(r.Context(), req); err != nil {
		writeAppError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Thanks! We received your message and will reply soon.",
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.cronAuthorized(r) {
		s.audit(r, security.EventCleanupAuthorize, "fail")
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	res, err := s.app.Cleanup(r.Context(), s.now())
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": res.DeletedCount,
		"deletedAt":    res.DeletedAt,
	})
}
