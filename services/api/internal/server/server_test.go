package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"taravani/pkg/mail"
	"taravani/pkg/payment"
	"taravani/pkg/store"
	"taravani/services/api/internal/app"
)

const (
	testSecret   = "0123456789abcdef0123456789abcdef"
	adminEmail   = "admin@taravani.com"
	adminDefault = "admin123"
)

type failingMailer struct{}

func (failingMailer) Send(context.Context, mail.Message) error { return errors.New("smtp down") }

func (failingMailer) Configured() bool { return true }

type testServer struct {
	*httptest.Server
	store *store.MemoryStore
}

type serverOption func(*app.Config, *Config)

func withMailer(m mail.Mailer) serverOption {
	return func(a *app.Config, _ *Config) { a.Mailer = m }
}

func withGateway(g payment.Gateway) serverOption {
	return func(a *app.Config, _ *Config) { a.Gateway = g }
}

func withRedis(addr string) serverOption {
	return func(_ *app.Config, c *Config) { c.RedisAddr = addr }
}

func withCronSecret(secret string) serverOption {
	return func(_ *app.Config, c *Config) { c.CronSecret = secret }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	appCfg := app.Config{
		Store:                mem,
		SessionSecret:        testSecret,
		InlinePDFs:           true,
		Mailer:               mail.Disabled{},
		Gateway:              payment.NewClient("", ""),
		AdminEmail:           adminEmail,
		DefaultAdminPassword: adminDefault,
	}
	srvCfg := Config{}
	for _, opt := range opts {
		opt(&appCfg, &srvCfg)
	}
	a, err := app.New(appCfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := a.SeedAdmin(context.Background()); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	srvCfg.App = a
	s, err := New(srvCfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: mem}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

func (ts *testServer) login(t *testing.T) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{
		"email": adminEmail, "password": adminDefault,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login expected 200, got %d: %v", resp.StatusCode, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token in %v", body)
	}
	return token
}

func validSubmission() map[string]any {
	return map[string]any{
		"fullName":     "Asha Rao",
		"email":        "asha@example.com",
		"dateOfBirth":  "1990-04-12",
		"timeOfBirth":  "06:30",
		"placeOfBirth": "Pune, India",
		"focusArea":    "Career",
		"consent1":     true,
		"consent2":     true,
	}
}

func (ts *testServer) submit(t *testing.T) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/submissions", "", validSubmission())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submission expected 201, got %d: %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("expected id in %v", body)
	}
	return id
}

func TestHealthAndNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
	resp, body = ts.do(t, http.MethodGet, "/api/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound || body["success"] != false {
		t.Fatalf("unexpected not found response %d %v", resp.StatusCode, body)
	}
	resp, _ = ts.do(t, http.MethodDelete, "/api/submissions", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestSubmissionValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	payload := validSubmission()
	payload["email"] = "not-an-email"
	payload["consent1"] = false
	resp, body := ts.do(t, http.MethodPost, "/api/submissions", "", payload)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Validation error" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
	fields, _ := body["errors"].([]any)
	if len(fields) < 2 {
		t.Fatalf("expected every failing field, got %v", fields)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/submissions", strings.NewReader("{"))
	resp, _ = ts.send(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed json expected 400, got %d", resp.StatusCode)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodGet, "/api/admin/submissions", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/admin/submissions", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", resp.StatusCode)
	}
	resp, body := ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{
		"email": adminEmail, "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized || body["success"] != false {
		t.Fatalf("expected 401 for wrong password, got %d %v", resp.StatusCode, body)
	}
}

func TestLoginListAndLogout(t *testing.T) {
	ts := newTestServer(t)
	id := ts.submit(t)

	resp, body := ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{
		"email": "ADMIN@taravani.com", "password": adminDefault,
	})
	if resp.StatusCode != http.StatusOK || body["requiresPasswordChange"] != true {
		t.Fatalf("unexpected login response %d %v", resp.StatusCode, body)
	}
	token := body["token"].(string)

	resp, body = ts.do(t, http.MethodGet, "/api/admin/submissions?status=NEW", token, nil)
	if resp.StatusCode != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("unexpected list response %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodGet, "/api/admin/submissions?status=bogus", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status expected 400, got %d %v", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/admin/submissions/"+id, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail expected 200, got %d %v", resp.StatusCode, body)
	}
	logs, _ := body["emailLogs"].([]any)
	if len(logs) != 1 {
		t.Fatalf("expected confirmation log, got %v", body["emailLogs"])
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/admin/submissions/missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing reading expected 404, got %d", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodPost, "/api/admin/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout expected 200, got %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/admin/submissions", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", resp.StatusCode)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	other := ts.login(t)
	// Session timestamps have second precision.
	time.Sleep(1100 * time.Millisecond)

	resp, body := ts.do(t, http.MethodPost, "/api/admin/change-password", token, map[string]string{
		"currentPassword": "nope", "newPassword": "a-much-better-secret",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong current password expected 400, got %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodPost, "/api/admin/change-password", token, map[string]string{
		"currentPassword": adminDefault, "newPassword": "a-much-better-secret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("change password expected 200, got %d %v", resp.StatusCode, body)
	}
	for _, tok := range []string{token, other} {
		resp, _ = ts.do(t, http.MethodGet, "/api/admin/submissions", tok, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected old session to be revoked, got %d", resp.StatusCode)
		}
	}
	resp, body = ts.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{
		"email": adminEmail, "password": "a-much-better-secret",
	})
	if resp.StatusCode != http.StatusOK || body["requiresPasswordChange"] != false {
		t.Fatalf("unexpected login after change %d %v", resp.StatusCode, body)
	}
}

func TestPaymentFlow(t *testing.T) {
	rzp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req payment.OrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_test1", "amount": req.Amount, "currency": req.Currency, "receipt": req.Receipt, "status": "created",
		})
	}))
	defer rzp.Close()
	ts := newTestServer(t, withGateway(payment.NewClient("rzp_test_key", "shh", payment.WithBaseURL(rzp.URL))))

	resp, body := ts.do(t, http.MethodPost, "/api/payments/create-order", "", validSubmission())
	if resp.StatusCode != http.StatusOK || body["orderId"] != "order_test1" || body["key"] != "rzp_test_key" {
		t.Fatalf("unexpected order response %d %v", resp.StatusCode, body)
	}
	if body["amount"] != float64(app.DefaultAmount) || body["currency"] != app.DefaultCurrency {
		t.Fatalf("unexpected amount %v", body)
	}
	readingID := body["readingId"].(string)

	resp, body = ts.do(t, http.MethodPost, "/api/payments/verify", "", map[string]string{
		"razorpay_order_id":   "order_test1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  strings.Repeat("0", 64),
		"readingId":           readingID,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad signature expected 400, got %d %v", resp.StatusCode, body)
	}

	resp, body = ts.do(t, http.MethodPost, "/api/payments/verify", "", map[string]string{
		"razorpay_order_id":   "order_test1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  payment.Sign("shh", "order_test1", "pay_1"),
		"readingId":           readingID,
	})
	if resp.StatusCode != http.StatusOK || body["readingId"] != readingID {
		t.Fatalf("verify expected 200, got %d %v", resp.StatusCode, body)
	}
	reading, ok, _ := ts.store.GetReading(context.Background(), readingID)
	if !ok || reading.PaymentStatus != "PAID" || reading.RazorpayPaymentID != "pay_1" {
		t.Fatalf("unexpected reading %+v", reading)
	}
}

func TestCreateOrderWithoutGateway(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/api/payments/create-order", "", validSubmission())
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "Payment gateway not configured" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
}

func TestContactAndAdminContacts(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodPost, "/api/contact", "", map[string]string{
		"name": "Ravi", "email": "ravi@example.com", "message": "When will my reading arrive?",
	})
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("contact expected 200, got %d %v", resp.StatusCode, body)
	}
	token := ts.login(t)
	resp, body = ts.do(t, http.MethodGet, "/api/admin/contacts?read=false", token, nil)
	contacts, _ := body["contacts"].([]any)
	if resp.StatusCode != http.StatusOK || len(contacts) != 1 {
		t.Fatalf("unexpected contacts %d %v", resp.StatusCode, body)
	}
	id := contacts[0].(map[string]any)["id"].(string)

	resp, body = ts.do(t, http.MethodPatch, "/api/admin/contacts", token, map[string]any{"id": id, "read": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark read expected 200, got %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodGet, "/api/admin/contacts?read=false", token, nil)
	if body["count"] != float64(0) {
		t.Fatalf("expected no unread contacts, got %v", body)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/admin/contacts?limit=abc", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit expected 400, got %d", resp.StatusCode)
	}
}

func TestUploadAndDownloadPDF(t *testing.T) {
	ts := newTestServer(t)
	id := ts.submit(t)
	token := ts.login(t)
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

	upload := func(contentType string, data []byte) (*http.Response, map[string]any) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("readingId", id)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="chart.pdf"`)
		h.Set("Content-Type", contentType)
		part, _ := mw.CreatePart(h)
		_, _ = part.Write(data)
		_ = mw.Close()
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/admin/upload-pdf", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		return ts.send(t, req)
	}

	resp, body := upload("text/plain", []byte("hello"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-pdf expected 400, got %d %v", resp.StatusCode, body)
	}
	resp, body = upload("application/pdf", pdf)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload expected 200, got %d %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/admin/submissions/"+id+"/pdf", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer raw.Body.Close()
	got, _ := io.ReadAll(raw.Body)
	if raw.StatusCode != http.StatusOK || raw.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected download %d %s", raw.StatusCode, raw.Header.Get("Content-Type"))
	}
	if !bytes.Equal(got, pdf) {
		t.Fatalf("downloaded bytes differ")
	}
	if !strings.Contains(raw.Header.Get("Content-Disposition"), "filename=") {
		t.Fatalf("expected filename in disposition %q", raw.Header.Get("Content-Disposition"))
	}
}

func TestUpdateReadingSkipsUnconfiguredMail(t *testing.T) {
	ts := newTestServer(t)
	id := ts.submit(t)
	token := ts.login(t)

	resp, body := ts.do(t, http.MethodPatch, "/api/admin/submissions/"+id, token, map[string]any{
		"status": "SENT",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("SENT without sendEmail expected 400, got %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodPatch, "/api/admin/submissions/"+id, token, map[string]any{
		"reportText": "Your chart shows...",
		"status":     "SENT",
		"sendEmail":  true,
	})
	if resp.StatusCode != http.StatusOK || body["skipped"] != true {
		t.Fatalf("unexpected update response %d %v", resp.StatusCode, body)
	}
	reading := body["reading"].(map[string]any)
	if reading["status"] != "SENT" {
		t.Fatalf("expected SENT, got %v", reading["status"])
	}
}

func TestSendEmailFailureReturnsReading(t *testing.T) {
	ts := newTestServer(t, withMailer(failingMailer{}))
	id := ts.submit(t)
	token := ts.login(t)

	resp, body := ts.do(t, http.MethodPatch, "/api/admin/submissions/"+id, token, map[string]any{
		"reportText": "Your chart shows...",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save expected 200, got %d %v", resp.StatusCode, body)
	}
	resp, body = ts.do(t, http.MethodPost, "/api/admin/send-email", token, map[string]string{"readingId": id})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failed dispatch expected 500, got %d %v", resp.StatusCode, body)
	}
	reading, _ := body["reading"].(map[string]any)
	if reading == nil || reading["status"] != "FAILED" {
		t.Fatalf("expected FAILED reading in body, got %v", body)
	}
	if !strings.Contains(body["error"].(string), "smtp down") {
		t.Fatalf("expected transport error for admin, got %v", body["error"])
	}
}

func TestTestEmailNotConfigured(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t)
	resp, body := ts.do(t, http.MethodPost, "/api/admin/test-email", token, map[string]string{})
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Email not configured" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
}

func TestCleanupRequiresCronSecret(t *testing.T) {
	ts := newTestServer(t, withCronSecret("cron-secret-value"))
	resp, _ := ts.do(t, http.MethodGet, "/api/admin/cleanup", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodPost, "/api/admin/cleanup", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %d", resp.StatusCode)
	}
	resp, body := ts.do(t, http.MethodGet, "/api/admin/cleanup", "cron-secret-value", nil)
	if resp.StatusCode != http.StatusOK || body["deletedCount"] != float64(0) {
		t.Fatalf("unexpected cleanup response %d %v", resp.StatusCode, body)
	}
}

func TestContactRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := newTestServer(t, withRedis(mr.Addr()), func(_ *app.Config, c *Config) {
		c.ContactRateLimitPerMinute = 1
	})
	msg := map[string]string{"name": "Ravi", "email": "ravi@example.com", "message": "Hello there, a question."}
	resp, body := ts.do(t, http.MethodPost, "/api/contact", "", msg)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request expected 200, got %d %v", resp.StatusCode, body)
	}
	resp, _ = ts.do(t, http.MethodPost, "/api/contact", "", msg)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestServerRejectsBadProxyCIDR(t *testing.T) {
	a, err := app.New(app.Config{Store: store.NewMemoryStore(), SessionSecret: testSecret, InlinePDFs: true})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := New(Config{App: a, TrustedProxies: []string{"not-a-cidr"}}); err == nil {
		t.Fatalf("expected invalid proxy cidr to fail")
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing app to fail")
	}
}
