package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"taravani/internal/util"
	"taravani/pkg/domain"
	"taravani/pkg/events"
	"taravani/pkg/intake"
	"taravani/pkg/mail"
	"taravani/pkg/storage"
	"taravani/pkg/store"
)

// MaxPDFSize bounds uploaded report PDFs.
const MaxPDFSize = 10 << 20

var pdfMagic = []byte("%PDF-")

// UpdateInput is an admin edit of a reading's report.
type UpdateInput struct {
	ReportText *string `json:"reportText"`
	Status     *string `json:"status"`
	SendEmail  bool    `json:"sendEmail"`
	DeletePDF  bool    `json:"deletePdf"`
}

// Delivery describes the outcome of a report dispatch.
type Delivery struct {
	Delivered bool `json:"delivered"`
	Skipped   bool `json:"skipped"`
}

// UpdateResult is the persisted reading after an edit, plus the dispatch
// outcome when one was requested.
type UpdateResult struct {
	Reading  domain.Reading `json:"reading"`
	Delivery *Delivery      `json:"delivery,omitempty"`
}

// UploadInput is a report PDF received from the dashboard.
type UploadInput struct {
	ReadingID   string
	Filename    string
	ContentType string
	Data        []byte
}

// PDFFile is a report PDF ready to be served.
type PDFFile struct {
	Filename string
	Data     []byte
}

// UpdateReading commits the edit, then dispatches the report when asked.
// A failed dispatch returns the persisted reading together with a *GatewayError.
func (a *App) UpdateReading(ctx context.Context, id string, in UpdateInput) (UpdateResult, error) {
	current, err := a.GetReading(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	var status *domain.ReadingStatus
	if in.Status != nil {
		s := domain.ReadingStatus(strings.ToUpper(strings.TrimSpace(*in.Status)))
		if !s.Valid() {
			return UpdateResult{}, intake.Invalid("status", "Unknown status")
		}
		if s == domain.StatusSent && !in.SendEmail {
			return UpdateResult{}, intake.Invalid("status", "Status SENT requires sendEmail")
		}
		status = &s
	}
	text := current.ReportText
	if in.ReportText != nil {
		text = *in.ReportText
	}
	if in.SendEmail && strings.TrimSpace(text) == "" {
		return UpdateResult{}, intake.Invalid("reportText", "Report text is required to send the report")
	}

	// SENT is only ever written by dispatch, together with reportSentAt.
	if status != nil && *status == domain.StatusSent {
		status = nil
	}
	patch := store.ReadingPatch{ReportText: in.ReportText, Status: status}
	if in.DeletePDF {
		none := domain.NoPDF()
		patch.ReportPDF = &none
	}

	updated := current
	if !patch.Empty() {
		var ok bool
		updated, ok, err = a.store.UpdateReading(ctx, current.ID, patch)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("update reading: %w", err)
		}
		if !ok {
			return UpdateResult{}, ErrNotFound
		}
	}
	if in.DeletePDF && current.ReportPDF.IsStored() {
		a.removeObject(ctx, current.ID, current.ReportPDF.Path)
	}

	result := UpdateResult{Reading: updated}
	if !in.SendEmail {
		return result, nil
	}
	reading, delivery, err := a.dispatch(ctx, updated)
	result.Reading, result.Delivery = reading, &delivery
	return result, err
}

// SendReport emails the report of a reading.
func (a *App) SendReport(ctx context.Context, id string) (UpdateResult, error) {
	reading, err := a.GetReading(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	if strings.TrimSpace(reading.ReportText) == "" {
		return UpdateResult{}, intake.Invalid("reportText", "Report text is required to send the report")
	}
	reading, delivery, err := a.dispatch(ctx, reading)
	return UpdateResult{Reading: reading, Delivery: &delivery}, err
}

// dispatch sends the report and moves the reading to SENT or FAILED.
func (a *App) dispatch(ctx context.Context, r domain.Reading) (domain.Reading, Delivery, error) {
	logger := util.LoggerFromContext(ctx).With("reading_id", r.ID)
	msg := reportMessage(r.Email, r.Name, r.ReportText)
	if a.mailer.Configured() {
		if att, ok := a.attachment(ctx, r); ok {
			msg.Attachments = []mail.Attachment{att}
		}
	}

	sendErr := a.deliver(ctx, r.ID, domain.EmailReport, msg)
	delivery := Delivery{Delivered: sendErr == nil}
	if errors.Is(sendErr, mail.ErrNotConfigured) {
		delivery.Skipped = true
		sendErr = nil
	}

	patch := store.ReadingPatch{}
	status := domain.StatusSent
	if sendErr != nil {
		status = domain.StatusFailed
	} else {
		now := a.clock()
		patch.ReportSentAt = &now
	}
	patch.Status = &status

	updated, ok, err := a.store.UpdateReading(ctx, r.ID, patch)
	switch {
	case err != nil:
		logger.Error("record dispatch status failed", "status", status, "err", err)
		updated = r
	case !ok:
		updated = r
	}

	if sendErr != nil {
		logger.Error("report email failed", "err", sendErr)
		a.publish(ctx, events.ReadingDeliveryFailed, r.ID, nil)
		return updated, delivery, &GatewayError{Op: "send report email", Err: sendErr}
	}
	a.publish(ctx, events.ReadingDelivered, r.ID, map[string]string{"skipped": strconv.FormatBool(delivery.Skipped)})
	return updated, delivery, nil
}

// attachment loads the report PDF, preferring inline bytes over the stored object.
func (a *App) attachment(ctx context.Context, r domain.Reading) (mail.Attachment, bool) {
	data, err := a.pdfBytes(ctx, r)
	if err != nil {
		if !errors.Is(err, ErrNoReportPDF) {
			util.LoggerFromContext(ctx).Warn("report pdf attachment skipped", "reading_id", r.ID, "err", err)
		}
		return mail.Attachment{}, false
	}
	return mail.Attachment{Filename: pdfFilename(r), ContentType: "application/pdf", Data: data}, true
}

func (a *App) pdfBytes(ctx context.Context, r domain.Reading) ([]byte, error) {
	switch {
	case r.ReportPDF.IsInline() && len(r.ReportPDF.Data) > 0:
		return r.ReportPDF.Data, nil
	case r.ReportPDF.IsStored():
		if a.reports == nil {
			return nil, fmt.Errorf("report storage unavailable for %s", r.ReportPDF.Path)
		}
		data, err := a.reports.Get(ctx, r.ReportPDF.Path)
		if err != nil {
			return nil, fmt.Errorf("load stored pdf: %w", err)
		}
		return data, nil
	}
	return nil, ErrNoReportPDF
}

// ReportPDF returns the attached PDF of a reading.
func (a *App) ReportPDF(ctx context.Context, id string) (PDFFile, error) {
	reading, err := a.GetReading(ctx, id)
	if err != nil {
		return PDFFile{}, err
	}
	data, err := a.pdfBytes(ctx, reading)
	if errors.Is(err, ErrNoReportPDF) || errors.Is(err, storage.ErrNotFound) {
		return PDFFile{}, ErrNotFound
	}
	if err != nil {
		return PDFFile{}, err
	}
	return PDFFile{Filename: pdfFilename(reading), Data: data}, nil
}

// UploadPDF validates and attaches a report PDF, replacing any previous one.
func (a *App) UploadPDF(ctx context.Context, in UploadInput) (domain.Reading, error) {
	if err := validatePDF(in); err != nil {
		return domain.Reading{}, err
	}
	current, err := a.GetReading(ctx, in.ReadingID)
	if err != nil {
		return domain.Reading{}, err
	}
	logger := util.LoggerFromContext(ctx).With("reading_id", current.ID)
	pages := pageCount(in.Data)

	value := domain.InlinePDF(in.Data)
	if !a.inline {
		filename := storage.SafeFilename(in.Filename)
		if filename == "" || filename == "." {
			filename = "report.pdf"
		}
		key := fmt.Sprintf("reports/%s/%s-%s", current.ID, util.NewID()[:8], filename)
		if err := a.reports.Put(ctx, key, bytes.NewReader(in.Data), int64(len(in.Data)), "application/pdf"); err != nil {
			logger.Warn("report storage write failed, storing pdf inline", "key", key, "err", err)
		} else {
			value = domain.StoredPDF(key, int64(len(in.Data)))
		}
	}

	updated, ok, err := a.store.UpdateReading(ctx, current.ID, store.ReadingPatch{ReportPDF: &value})
	if err != nil {
		if value.IsStored() {
			a.removeObject(ctx, current.ID, value.Path)
		}
		return domain.Reading{}, fmt.Errorf("attach pdf: %w", err)
	}
	if !ok {
		return domain.Reading{}, ErrNotFound
	}
	if current.ReportPDF.IsStored() && current.ReportPDF.Path != value.Path {
		a.removeObject(ctx, current.ID, current.ReportPDF.Path)
	}

	logger.Info("report pdf attached", "kind", value.Kind, "size", len(in.Data), "pages", pages)
	a.publish(ctx, events.ReadingPDFAttached, current.ID, map[string]string{
		"kind":  string(value.Kind),
		"pages": strconv.Itoa(pages),
	})
	return updated, nil
}

func validatePDF(in UploadInput) error {
	mediaType, _, err := mime.ParseMediaType(in.ContentType)
	if err != nil || mediaType != "application/pdf" {
		return intake.Invalid("file", "Only PDF files are allowed")
	}
	if len(in.Data) == 0 {
		return intake.Invalid("file", "File is empty")
	}
	if len(in.Data) > MaxPDFSize {
		return intake.Invalid("file", "File size must be less than 10MB")
	}
	if !bytes.HasPrefix(in.Data, pdfMagic) {
		return intake.Invalid("file", "File is not a valid PDF")
	}
	return nil
}

// pageCount returns the number of pages, or 0 when the document cannot be parsed.
func pageCount(data []byte) (n int) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf page count failed", "panic", r)
			n = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

func (a *App) removeObject(ctx context.Context, readingID, key string) {
	if a.reports == nil || key == "" {
		return
	}
	if err := a.reports.Delete(ctx, key); err != nil {
		util.LoggerFromContext(ctx).Warn("remove stored pdf failed", "reading_id", readingID, "key", key, "err", err)
	}
}

func pdfFilename(r domain.Reading) string {
	name := storage.SafeFilename(strings.ReplaceAll(strings.TrimSpace(r.Name), " ", "-"))
	if name == "" || name == "." {
		name = "reading"
	}
	return name + "-birth-chart-reading.pdf"
}
