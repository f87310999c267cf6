package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/contact-backend/internal/domain"
	"github.com/tbourn/contact-backend/internal/http/middleware"
	"github.com/tbourn/contact-backend/internal/services"
	"github.com/tbourn/contact-backend/internal/verify"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Submission{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type recordingNotifier struct{ n atomic.Int32 }

func (r *recordingNotifier) Notify(*domain.Submission) bool {
	r.n.Add(1)
	return true
}

// siteverify fakes the Turnstile endpoint and counts calls.
func siteverify(t *testing.T, success bool) (*verify.Turnstile, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"success":%t}`, success)
	}))
	t.Cleanup(srv.Close)
	return &verify.Turnstile{Secret: "s3cret", VerifyURL: srv.URL, Client: srv.Client()}, &calls
}

type harness struct {
	db       *gorm.DB
	notifier *recordingNotifier
	router   *gin.Engine
}

func newHarness(t *testing.T, v verify.Verifier) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	n := &recordingNotifier{}
	svc := services.NewSubmissionService(db, v, n)
	h := New(svc, db, time.Hour)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/api/contact-submissions",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, IdempotencyLookup(db)),
		h.CreateSubmission,
	)
	return &harness{db: db, notifier: n, router: r}
}

func (h *harness) post(body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/contact-submissions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) count(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&domain.Submission{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func formBody(overrides map[string]any) string {
	data := map[string]any{
		"firstName":        "Ada",
		"lastName":         "Lovelace",
		"email":            "ada@example.com",
		"phone":            "+44 20 7946 0958",
		"preferredReading": "Tarot",
		"referral":         "Friend",
		"message":          "Hello there",
	}
	for k, v := range overrides {
		data[k] = v
	}
	b, _ := json.Marshal(map[string]any{"data": data})
	return string(b)
}

type envelope struct {
	Data  *domain.Submission `json:"data"`
	Meta  map[string]any     `json:"meta"`
	Error *struct {
		Status  int            `json:"status"`
		Name    string         `json:"name"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return e
}

// ---------- tests ----------

func TestCreateSubmission_HappyPath(t *testing.T) {
	h := newHarness(t, nil)

	w := h.post(formBody(nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	e := decode(t, w)
	if e.Data == nil || e.Data.ID == 0 || e.Data.DocumentID == "" {
		t.Fatalf("expected persisted record, got %+v", e.Data)
	}
	if e.Data.Email != "ada@example.com" || e.Data.Phone == nil || *e.Data.Phone != "+44 20 7946 0958" {
		t.Fatalf("unexpected record fields: %+v", e.Data)
	}
	if e.Meta == nil || len(e.Meta) != 0 {
		t.Fatalf("expected empty meta object, got %#v", e.Meta)
	}
	if strings.Contains(w.Body.String(), "website") || strings.Contains(w.Body.String(), "turnstileToken") {
		t.Fatalf("transient fields leaked into response: %s", w.Body.String())
	}
	if got := h.count(t); got != 1 {
		t.Fatalf("expected 1 row, got %d", got)
	}
	if got := h.notifier.n.Load(); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
}

func TestCreateSubmission_Honeypot(t *testing.T) {
	v, calls := siteverify(t, true)
	h := newHarness(t, v)

	w := h.post(formBody(map[string]any{"website": "http://spam.example"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	e := decode(t, w)
	if e.Data == nil || e.Data.ID != 0 {
		t.Fatalf("expected synthetic record with id 0, got %+v", e.Data)
	}
	if got := h.count(t); got != 0 {
		t.Fatalf("honeypot must not persist, got %d rows", got)
	}
	if h.notifier.n.Load() != 0 || calls.Load() != 0 {
		t.Fatalf("honeypot must skip notify (%d) and verification (%d)", h.notifier.n.Load(), calls.Load())
	}
}

func TestCreateSubmission_VerificationRequired(t *testing.T) {
	v, calls := siteverify(t, true)
	h := newHarness(t, v)

	w := h.post(formBody(nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	e := decode(t, w)
	if e.Error == nil || e.Error.Message != MsgVerificationRequired || e.Error.Name != ErrNameBadRequest {
		t.Fatalf("unexpected error: %+v", e.Error)
	}
	if e.Data != nil {
		t.Fatalf("data must be null on error")
	}
	if calls.Load() != 0 {
		t.Fatalf("no outbound call expected without a token, got %d", calls.Load())
	}
	if h.count(t) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestCreateSubmission_VerificationFailed(t *testing.T) {
	v, calls := siteverify(t, false)
	h := newHarness(t, v)

	w := h.post(formBody(map[string]any{"turnstileToken": "bad"}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if e := decode(t, w); e.Error == nil || e.Error.Message != MsgVerificationFailed {
		t.Fatalf("unexpected error: %+v", e.Error)
	}
	if calls.Load() != 1 || h.count(t) != 0 || h.notifier.n.Load() != 0 {
		t.Fatalf("calls=%d rows=%d notified=%d", calls.Load(), h.count(t), h.notifier.n.Load())
	}
}

func TestCreateSubmission_VerifiedOnce(t *testing.T) {
	v, calls := siteverify(t, true)
	h := newHarness(t, v)

	w := h.post(formBody(map[string]any{"turnstileToken": "good"}))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if calls.Load() != 1 || h.count(t) != 1 {
		t.Fatalf("calls=%d rows=%d", calls.Load(), h.count(t))
	}
}

func TestCreateSubmission_ValidationError(t *testing.T) {
	h := newHarness(t, nil)

	w := h.post(formBody(map[string]any{"email": "not-an-email", "message": "  "}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	e := decode(t, w)
	if e.Error == nil || e.Error.Name != ErrNameValidation {
		t.Fatalf("unexpected error: %+v", e.Error)
	}
	issues, _ := e.Error.Details["errors"].([]any)
	if len(issues) != 2 {
		t.Fatalf("expected 2 field issues, got %#v", e.Error.Details)
	}
	paths := map[string]bool{}
	for _, it := range issues {
		m := it.(map[string]any)
		p := m["path"].([]any)
		paths[p[0].(string)] = true
	}
	if !paths["email"] || !paths["message"] {
		t.Fatalf("expected email and message issues, got %v", paths)
	}
	if h.count(t) != 0 {
		t.Fatalf("invalid submissions must not persist")
	}
}

func TestCreateSubmission_MalformedBody(t *testing.T) {
	h := newHarness(t, nil)

	for name, body := range map[string]string{
		"not json":     `{"data":`,
		"missing data": `{"firstName":"Ada"}`,
		"null data":    `{"data":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := h.post(body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			e := decode(t, w)
			if e.Error == nil || e.Error.Name != ErrNameValidation || e.Error.Message != MsgInvalidBody {
				t.Fatalf("unexpected error: %+v", e.Error)
			}
			if e.RequestID == "" {
				t.Fatalf("expected request_id in error envelope")
			}
		})
	}
}

type stubSvc struct {
	err error
}

func (s stubSvc) Submit(context.Context, domain.SubmissionInput, string) (*services.SubmitResult, error) {
	return nil, s.err
}

func (s stubSvc) Get(context.Context, uint) (*domain.Submission, error) {
	return nil, services.ErrSubmissionNotFound
}

func TestCreateSubmission_PersistenceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(stubSvc{err: fmt.Errorf("%w: %w", services.ErrPersistence, context.DeadlineExceeded)}, nil, 0)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.POST("/api/contact-submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/contact-submissions", bytes.NewBufferString(formBody(nil)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	e := decode(t, w)
	if e.Error == nil || e.Error.Name != ErrNameInternal || e.Error.Message != MsgInternal {
		t.Fatalf("unexpected error: %+v", e.Error)
	}
	if strings.Contains(w.Body.String(), "deadline") {
		t.Fatalf("internal error detail leaked: %s", w.Body.String())
	}
}

func TestCreateSubmission_IdempotentReplay(t *testing.T) {
	h := newHarness(t, nil)

	first := h.post(formBody(nil), "Idempotency-Key", "retry-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first: %d %s", first.Code, first.Body.String())
	}
	second := h.post(formBody(map[string]any{"message": "changed"}), "Idempotency-Key", "retry-1")
	if second.Code != http.StatusOK {
		t.Fatalf("second: %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}
	a, b := decode(t, first), decode(t, second)
	if a.Data.ID != b.Data.ID || b.Data.Message != "Hello there" {
		t.Fatalf("replay returned a different record: %+v vs %+v", a.Data, b.Data)
	}
	if h.count(t) != 1 || h.notifier.n.Load() != 1 {
		t.Fatalf("replay must not create or notify: rows=%d notified=%d", h.count(t), h.notifier.n.Load())
	}

	// A different client with the same key is not a replay.
	third := h.post(formBody(nil), "Idempotency-Key", "retry-1", "X-Forwarded-For", "198.51.100.7")
	if third.Header().Get("Idempotency-Replayed") != "" || h.count(t) != 2 {
		t.Fatalf("keys must be scoped per client: rows=%d", h.count(t))
	}
}

func TestCreateSubmission_HoneypotNotRecordedForReplay(t *testing.T) {
	h := newHarness(t, nil)

	spam := formBody(map[string]any{"website": "x"})
	h.post(spam, "Idempotency-Key", "bot-1")
	w := h.post(spam, "Idempotency-Key", "bot-1")
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("spam answers must not be replayable")
	}
	var n int64
	h.db.Model(&domain.Idempotency{}).Count(&n)
	if n != 0 {
		t.Fatalf("expected no idempotency records for spam, got %d", n)
	}
}

func TestIdempotencyLookup(t *testing.T) {
	db := newTestDB(t)
	lookup := IdempotencyLookup(db)
	now := time.Now().UTC()

	found, err := lookup(context.Background(), "c", "k", now)
	if err != nil || found {
		t.Fatalf("empty table: found=%v err=%v", found, err)
	}
	sub := domain.Submission{DocumentID: "doc-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", PreferredReading: "Tarot", Message: "hi"}
	if err := db.Create(&sub).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	rec := domain.Idempotency{ID: "1", ClientKey: "c", Key: "k", SubmissionID: sub.ID, Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	found, err = lookup(context.Background(), "c", "k", now)
	if err != nil || !found {
		t.Fatalf("seeded: found=%v err=%v", found, err)
	}
	if found, _ := lookup(context.Background(), "other", "k", now); found {
		t.Fatalf("lookup must be scoped per client")
	}

	// A record whose submission is gone is not a replay.
	if err := db.Delete(&domain.Submission{}, sub.ID).Error; err != nil {
		t.Fatalf("delete submission: %v", err)
	}
	if found, err := lookup(context.Background(), "c", "k", now); err != nil || found {
		t.Fatalf("deleted submission: found=%v err=%v", found, err)
	}
}

func TestCreateSubmission_KeyReusedAfterSubmissionDeleted(t *testing.T) {
	h := newHarness(t, nil)

	if w := h.post(formBody(nil), "Idempotency-Key", "retry-2"); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}
	if err := h.db.Exec("DELETE FROM contact_submissions").Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	second := h.post(formBody(map[string]any{"message": "again"}), "Idempotency-Key", "retry-2")
	if second.Code != http.StatusOK || second.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("second should be a fresh submission: %d replayed=%q", second.Code, second.Header().Get("Idempotency-Replayed"))
	}
	if h.count(t) != 1 || h.notifier.n.Load() != 2 {
		t.Fatalf("expected one new row and a second notification: rows=%d notified=%d", h.count(t), h.notifier.n.Load())
	}

	// The key now points at the new submission.
	third := h.post(formBody(nil), "Idempotency-Key", "retry-2")
	if third.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay of the new submission")
	}
	if b := decode(t, third); b.Data.Message != "again" {
		t.Fatalf("replayed the wrong record: %+v", b.Data)
	}
	if h.count(t) != 1 || h.notifier.n.Load() != 2 {
		t.Fatalf("replay must not create or notify: rows=%d notified=%d", h.count(t), h.notifier.n.Load())
	}
}
