package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taravani/internal/security"
	"taravani/services/api/internal/app"
)

// Multipart overhead allowed on top of the PDF itself.
const uploadOverhead = 1 << 20

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type updateContactRequest struct {
	ID   string `json:"id"`
	Read *bool  `json:"read"`
}

type sendEmailRequest struct {
	ReadingID string `json:"readingId"`
}

type testEmailRequest struct {
	TestEmail string `json:"testEmail"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			s.audit(r, security.EventAdminLogin, "fail")
		}
		writeAppError(w, r, err, false)
		return
	}
	s.audit(r, security.EventAdminLogin, "success", "admin_id", res.Admin.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                true,
		"admin":                  res.Admin,
		"token":                  res.Token,
		"expiresAt":              res.ExpiresAt,
		"requiresPasswordChange": res.RequiresPasswordChange,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	if err := s.app.Logout(r.Context(), token); err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	admin := adminFromContext(r.Context())
	token, _ := bearerToken(r)
	if err := s.app.ChangePassword(r.Context(), admin, token, req.CurrentPassword, req.NewPassword); err != nil {
		s.audit(r, security.EventAdminPasswordChange, "fail", "admin_id", admin.ID)
		writeAppError(w, r, err, true)
		return
	}
	s.audit(r, security.EventAdminPasswordChange, "success", "admin_id", admin.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Password updated, please log in again",
	})
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.app.ListReadings(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"readings": readings,
		"count":    len(readings),
	})
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	detail, err := s.app.ReadingDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"reading":   detail.Reading,
		"emailLogs": detail.EmailLogs,
	})
}

func (s *Server) handleUpdateReading(w http.ResponseWriter, r *http.Request) {
	var req app.UpdateInput
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.UpdateReading(r.Context(), chi.URLParam(r, "id"), req)
	s.writeUpdateResult(w, r, res, err)
}

func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.app.SendReport(r.Context(), req.ReadingID)
	s.writeUpdateResult(w, r, res, err)
}

// writeUpdateResult reports the persisted reading even when the dispatch failed.
func (s *Server) writeUpdateResult(w http.ResponseWriter, r *http.Request, res app.UpdateResult, err error) {
	var gwErr *app.GatewayError
	if errors.As(err, &gwErr) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to send email: " + gwErr.Err.Error(),
			"reading": res.Reading,
		})
		return
	}
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	body := map[string]any{"success": true, "reading": res.Reading}
	if res.Delivery != nil {
		body["delivered"] = res.Delivery.Delivered
		body["skipped"] = res.Delivery.Skipped
		if res.Delivery.Skipped {
			body["message"] = "Email service not configured, report marked as sent"
		} else {
			body["message"] = "Email sent successfully"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReadingPDF(w http.ResponseWriter, r *http.Request) {
	file, err := s.app.ReportPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": file.Filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var read *bool
	if raw := strings.TrimSpace(q.Get("read")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read must be true or false")
			return
		}
		read = &v
	}
	limit := 0
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
	}
	contacts, err := s.app.ListContacts(r.Context(), read, limit)
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"contacts": contacts,
		"count":    len(contacts),
	})
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var req updateContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Read == nil {
		writeError(w, http.StatusBadRequest, "read is required")
		return
	}
	contact, err := s.app.SetContactRead(r.Context(), req.ID, *req.Read)
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "contact": contact})
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxPDFSize+uploadOverhead)
	if err := r.ParseMultipartForm(app.MaxPDFSize + uploadOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File size must be less than 10MB")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	readingID := strings.TrimSpace(r.FormValue("readingId"))
	file, header, err := r.FormFile("file")
	if err != nil || readingID == "" {
		writeError(w, http.StatusBadRequest, "file and readingId are required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, app.MaxPDFSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}

	reading, err := s.app.UploadPDF(r.Context(), app.UploadInput{
		ReadingID:   readingID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"reading": reading,
		"pdf":     reading.ReportPDF,
	})
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	var req testEmailRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	check, err := s.app.TestEmail(r.Context(), adminFromContext(r.Context()), req.TestEmail)
	if errors.Is(err, app.ErrMailNotConfigured) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "Email not configured",
			"config":  check.Config,
		})
		return
	}
	if err != nil {
		writeAppError(w, r, err, true)
		return
	}
	message := "Failed to send test email"
	if check.Send.Success {
		message = "Test email sent successfully to " + check.Recipient
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        check.Send.Success,
		"message":        message,
		"config":         check.Config,
		"connectionTest": check.Connection,
		"sendTest":       check.Send,
	})
}
