package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/contact-backend/internal/domain"
	"github.com/tbourn/contact-backend/internal/verify"
)

// ----- Fakes -----

type fakeVerifier struct {
	calls  int
	tokens []string
	ips    []string
	err    error
}

func (v *fakeVerifier) Verify(_ context.Context, token, remoteIP string) error {
	v.calls++
	v.tokens = append(v.tokens, token)
	v.ips = append(v.ips, remoteIP)
	if token == "" {
		return verify.ErrMissingToken
	}
	return v.err
}

type fakeNotifier struct {
	got []*domain.Submission
}

func (n *fakeNotifier) Notify(s *domain.Submission) bool {
	n.got = append(n.got, s)
	return true
}

type failingRepo struct{ err error }

func (r failingRepo) CreateSubmission(context.Context, *gorm.DB, *domain.Submission) error {
	return r.err
}

func (r failingRepo) GetSubmission(context.Context, *gorm.DB, uint) (*domain.Submission, error) {
	return nil, r.err
}

// ----- Helpers -----

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Submission{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.Submission{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func validInput() domain.SubmissionInput {
	return domain.SubmissionInput{
		FirstName:        " Ada ",
		LastName:         "Lovelace",
		Email:            "Ada@Example.com",
		PreferredReading: "Tarot",
		Message:          "Hello",
		TurnstileToken:   "tok-1",
	}
}

// ----- Tests -----

func TestSubmit_HappyPath_PersistsAndNotifies(t *testing.T) {
	db := newTestDB(t)
	v, n := &fakeVerifier{}, &fakeNotifier{}
	svc := NewSubmissionService(db, v, n)

	before := testutil.ToFloat64(submissionsTotal.WithLabelValues(OutcomeCreated))
	res, err := svc.Submit(context.Background(), validInput(), "203.0.113.1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Spam || res.Submission.ID == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Submission.FirstName != "Ada" || res.Submission.Email != "ada@example.com" {
		t.Fatalf("input was not normalized: %+v", res.Submission)
	}
	if v.calls != 1 || v.tokens[0] != "tok-1" || v.ips[0] != "203.0.113.1" {
		t.Fatalf("verifier should be called exactly once with the token, got %+v", v)
	}
	if len(n.got) != 1 || n.got[0].ID != res.Submission.ID {
		t.Fatalf("expected one notification for the saved record, got %+v", n.got)
	}
	if countRows(t, db) != 1 {
		t.Fatalf("expected 1 row")
	}
	if got := testutil.ToFloat64(submissionsTotal.WithLabelValues(OutcomeCreated)); got != before+1 {
		t.Fatalf("created counter = %v, want %v", got, before+1)
	}
}

func TestSubmit_Honeypot_NoPersistNoNotifyNoVerify(t *testing.T) {
	db := newTestDB(t)
	v, n := &fakeVerifier{}, &fakeNotifier{}
	svc := NewSubmissionService(db, v, n)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.Now = func() time.Time { return fixed }

	in := validInput()
	in.Website = "http://spam.example"
	res, err := svc.Submit(context.Background(), in, "1.1.1.1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Spam || res.Submission.ID != 0 || !res.Submission.CreatedAt.Equal(fixed) {
		t.Fatalf("expected synthetic id-0 result, got %+v", res.Submission)
	}
	if countRows(t, db) != 0 || len(n.got) != 0 || v.calls != 0 {
		t.Fatalf("honeypot must short-circuit: rows=%d notified=%d verified=%d", countRows(t, db), len(n.got), v.calls)
	}
}

func TestSubmit_MissingToken(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{}
	svc := NewSubmissionService(db, &fakeVerifier{}, n)

	in := validInput()
	in.TurnstileToken = ""
	_, err := svc.Submit(context.Background(), in, "")
	if !errors.Is(err, verify.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if countRows(t, db) != 0 || len(n.got) != 0 {
		t.Fatalf("nothing should be persisted or notified")
	}
}

func TestSubmit_VerificationFailed(t *testing.T) {
	db := newTestDB(t)
	svc := NewSubmissionService(db, &fakeVerifier{err: verify.ErrVerificationFailed}, nil)

	_, err := svc.Submit(context.Background(), validInput(), "")
	if !errors.Is(err, verify.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if countRows(t, db) != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestSubmit_NoVerifier_SkipsGate(t *testing.T) {
	db := newTestDB(t)
	svc := NewSubmissionService(db, nil, nil)

	in := validInput()
	in.TurnstileToken = ""
	if _, err := svc.Submit(context.Background(), in, ""); err != nil {
		t.Fatalf("Submit without verifier: %v", err)
	}
	if countRows(t, db) != 1 {
		t.Fatalf("expected 1 row")
	}
}

func TestSubmit_Invalid_ReturnsIssues(t *testing.T) {
	db := newTestDB(t)
	n := &fakeNotifier{}
	svc := NewSubmissionService(db, nil, n)

	in := validInput()
	in.Email = "not-an-email"
	in.Message = "   "
	_, err := svc.Submit(context.Background(), in, "")
	if !errors.Is(err, ErrInvalidSubmission) {
		t.Fatalf("expected ErrInvalidSubmission, got %v", err)
	}
	issues := domain.Issues(err)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %+v", issues)
	}
	if countRows(t, db) != 0 || len(n.got) != 0 {
		t.Fatalf("invalid input must not persist or notify")
	}
}

func TestSubmit_PersistenceError(t *testing.T) {
	n := &fakeNotifier{}
	svc := &SubmissionService{Repo: failingRepo{err: errors.New("disk full")}, Notifier: n}

	_, err := svc.Submit(context.Background(), validInput(), "")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if len(n.got) != 0 {
		t.Fatalf("failed persistence must not notify")
	}
}

func TestGet_FoundAndNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := NewSubmissionService(db, nil, nil)

	res, err := svc.Submit(context.Background(), validInput(), "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := svc.Get(context.Background(), res.Submission.ID)
	if err != nil || got.DocumentID != res.Submission.DocumentID {
		t.Fatalf("Get: got=%+v err=%v", got, err)
	}
	if _, err := svc.Get(context.Background(), 9999); !errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}

	broken := &SubmissionService{Repo: failingRepo{err: errors.New("boom")}}
	if _, err := broken.Get(context.Background(), 1); err == nil || errors.Is(err, ErrSubmissionNotFound) {
		t.Fatalf("expected raw error, got %v", err)
	}
}
