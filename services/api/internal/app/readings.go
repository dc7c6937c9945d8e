package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taravani/internal/util"
	"taravani/pkg/domain"
	"taravani/pkg/events"
	"taravani/pkg/intake"
	"taravani/pkg/mail"
	"taravani/pkg/payment"
	"taravani/pkg/store"
)

// OrderResult is returned to the checkout page.
type OrderResult struct {
	OrderID   string `json:"orderId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Key       string `json:"key"`
	ReadingID string `json:"readingId"`
}

// ReadingDetail is a reading with its dispatch history.
type ReadingDetail struct {
	Reading   domain.Reading    `json:"reading"`
	EmailLogs []domain.EmailLog `json:"emailLogs"`
}

// CreateSubmission stores an unpaid reading request and confirms it by email.
func (a *App) CreateSubmission(ctx context.Context, p intake.ReadingPayload) (domain.Reading, error) {
	in, err := intake.ValidateReading(p, a.clock())
	if err != nil {
		return domain.Reading{}, err
	}
	reading := domain.NewReading(util.NewID(), in, a.clock())
	if err := a.store.CreateReading(ctx, reading); err != nil {
		return domain.Reading{}, fmt.Errorf("create reading: %w", err)
	}
	a.publish(ctx, events.ReadingCreated, reading.ID, map[string]string{"flow": "free"})
	a.sendBestEffort(ctx, reading.ID, domain.EmailConfirmation, confirmationMessage(reading.Email, reading.Name, false))
	return reading, nil
}

// CreateOrder stores a pending paid reading and opens a gateway order for it.
// The reading is removed again when the gateway rejects the order.
func (a *App) CreateOrder(ctx context.Context, p intake.ReadingPayload) (OrderResult, error) {
	if !a.gateway.Configured() {
		return OrderResult{}, ErrPaymentNotConfigured
	}
	in, err := intake.ValidateReading(p, a.clock())
	if err != nil {
		return OrderResult{}, err
	}
	reading := domain.NewReading(util.NewID(), in, a.clock())
	reading.PaymentStatus = domain.PaymentPending
	reading.Amount = a.amount
	reading.Currency = a.currency
	if err := a.store.CreateReading(ctx, reading); err != nil {
		return OrderResult{}, fmt.Errorf("create reading: %w", err)
	}

	logger := util.LoggerFromContext(ctx).With("reading_id", reading.ID)
	notes := map[string]string{"readingId": reading.ID, "name": reading.Name, "email": reading.Email}
	order, err := a.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   a.amount,
		Currency: a.currency,
		Receipt:  "reading_" + reading.ID,
		Notes:    notes,
	})
	if err != nil {
		a.discardReading(ctx, reading.ID)
		return OrderResult{}, &GatewayError{Op: "create order", Err: err}
	}

	orderID := order.ID
	if _, _, err := a.store.UpdateReading(ctx, reading.ID, store.ReadingPatch{
		RazorpayOrderID: &orderID,
		PaymentNotes:    notes,
	}); err != nil {
		logger.Error("store order id failed", "order_id", orderID, "err", err)
	}
	a.publish(ctx, events.ReadingOrderCreated, reading.ID, map[string]string{"orderId": orderID})

	amount, currency := order.Amount, order.Currency
	if amount == 0 {
		amount = a.amount
	}
	if currency == "" {
		currency = a.currency
	}
	return OrderResult{
		OrderID:   orderID,
		Amount:    amount,
		Currency:  currency,
		Key:       a.gateway.KeyID(),
		ReadingID: reading.ID,
	}, nil
}

// discardReading removes a reading whose order could not be opened, retrying once.
func (a *App) discardReading(ctx context.Context, id string) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = a.store.DeleteReading(ctx, id); err == nil {
			return
		}
	}
	util.LoggerFromContext(ctx).Error("discard reading after failed order", "reading_id", id, "err", err)
}

// VerifyPayment checks the gateway signature and marks the reading paid.
func (a *App) VerifyPayment(ctx context.Context, p intake.PaymentPayload) (domain.Reading, error) {
	p, err := intake.ValidatePayment(p)
	if err != nil {
		return domain.Reading{}, err
	}
	if !a.gateway.VerifyPayment(p.OrderID, p.PaymentID, p.Signature) {
		return domain.Reading{}, ErrInvalidSignature
	}
	reading, err := a.GetReading(ctx, p.ReadingID)
	if err != nil {
		return domain.Reading{}, err
	}
	if reading.RazorpayOrderID != "" && reading.RazorpayOrderID != p.OrderID {
		return domain.Reading{}, ErrInvalidSignature
	}

	paid := domain.PaymentPaid
	orderID, paymentID := p.OrderID, p.PaymentID
	updated, ok, err := a.store.UpdateReading(ctx, reading.ID, store.ReadingPatch{
		PaymentStatus:     &paid,
		RazorpayOrderID:   &orderID,
		RazorpayPaymentID: &paymentID,
	})
	if err != nil {
		return domain.Reading{}, fmt.Errorf("mark reading paid: %w", err)
	}
	if !ok {
		return domain.Reading{}, ErrNotFound
	}
	a.publish(ctx, events.ReadingPaid, updated.ID, map[string]string{"paymentId": paymentID})
	a.sendBestEffort(ctx, updated.ID, domain.EmailConfirmation, confirmationMessage(updated.Email, updated.Name, true))
	return updated, nil
}

func (a *App) GetReading(ctx context.Context, id string) (domain.Reading, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Reading{}, ErrNotFound
	}
	reading, ok, err := a.store.GetReading(ctx, id)
	if err != nil {
		return domain.Reading{}, fmt.Errorf("get reading: %w", err)
	}
	if !ok {
		return domain.Reading{}, ErrNotFound
	}
	return reading, nil
}

// ReadingDetail returns a reading and the emails sent for it.
func (a *App) ReadingDetail(ctx context.Context, id string) (ReadingDetail, error) {
	reading, err := a.GetReading(ctx, id)
	if err != nil {
		return ReadingDetail{}, err
	}
	logs, err := a.store.ListEmailLogs(ctx, reading.ID)
	if err != nil {
		return ReadingDetail{}, fmt.Errorf("list email logs: %w", err)
	}
	if logs == nil {
		logs = []domain.EmailLog{}
	}
	return ReadingDetail{Reading: reading, EmailLogs: logs}, nil
}

// ListReadings returns readings newest first, optionally filtered by status.
func (a *App) ListReadings(ctx context.Context, status string) ([]domain.Reading, error) {
	filter := store.ReadingFilter{}
	if status = strings.ToUpper(strings.TrimSpace(status)); status != "" {
		s := domain.ReadingStatus(status)
		if !s.Valid() {
			return nil, intake.Invalid("status", "Unknown status")
		}
		filter.Status = s
	}
	readings, err := a.store.ListReadings(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	if readings == nil {
		readings = []domain.Reading{}
	}
	return readings, nil
}

// sendBestEffort delivers msg and records the attempt. Failures are logged only.
func (a *App) sendBestEffort(ctx context.Context, readingID string, kind domain.EmailKind, msg mail.Message) {
	if err := a.deliver(ctx, readingID, kind, msg); err != nil && !errors.Is(err, mail.ErrNotConfigured) {
		util.LoggerFromContext(ctx).Warn("email send failed", "kind", kind, "reading_id", readingID, "err", err)
	}
}

// deliver sends msg and appends an email log entry. An unconfigured mailer
// is recorded as skipped and returns mail.ErrNotConfigured.
func (a *App) deliver(ctx context.Context, readingID string, kind domain.EmailKind, msg mail.Message) error {
	entry := domain.EmailLog{
		ID:        util.NewUUID(),
		ReadingID: readingID,
		Kind:      kind,
		Recipient: strings.Join(msg.To, ","),
		Subject:   msg.Subject,
		Status:    domain.EmailSent,
		CreatedAt: a.clock(),
	}
	var sendErr error
	if !a.mailer.Configured() {
		entry.Status = domain.EmailSkipped
		sendErr = mail.ErrNotConfigured
		util.LoggerFromContext(ctx).Info("email not configured, skipping", "kind", kind, "reading_id", readingID)
	} else if sendErr = a.mailer.Send(ctx, msg); sendErr != nil {
		entry.Status = domain.EmailFailed
		entry.ErrorMessage = sendErr.Error()
	}
	if err := a.store.AppendEmailLog(ctx, entry); err != nil {
		util.LoggerFromContext(ctx).Warn("append email log failed", "kind", kind, "reading_id", readingID, "err", err)
	}
	return sendErr
}
