package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func validInput() SubmissionInput {
	return SubmissionInput{
		FirstName:        "Ada",
		LastName:         "Lovelace",
		Email:            "ada@example.com",
		PreferredReading: "Tarot",
		Message:          "Hello there",
	}
}

func TestTableNames(t *testing.T) {
	if (Submission{}).TableName() != "contact_submissions" {
		t.Fatalf("Submission.TableName() = %q", (Submission{}).TableName())
	}
	if (Idempotency{}).TableName() != "idempotency" {
		t.Fatalf("Idempotency.TableName() = %q", (Idempotency{}).TableName())
	}
}

func TestSubmission_Migration_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Submission{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&Submission{}, "ux_contact_document") {
		t.Fatalf("expected unique index ux_contact_document")
	}
	if !m.HasIndex(&Submission{}, "idx_contact_email") {
		t.Fatalf("expected index idx_contact_email")
	}

	sub := validInput().ToSubmission()
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	if sub.ID == 0 {
		t.Fatalf("store must never assign the sentinel id 0")
	}

	var got Submission
	if err := db.First(&got, sub.ID).Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.Phone != nil || got.Referral != nil {
		t.Fatalf("empty optional fields should be NULL, got phone=%v referral=%v", got.Phone, got.Referral)
	}

	// documentId is unique
	dup := validInput().ToSubmission()
	dup.DocumentID = sub.DocumentID
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE violation on document_id")
	}
}

func TestSubmissionInput_Normalize(t *testing.T) {
	in := SubmissionInput{
		FirstName:      "  Ame\u0301lie ", // decomposed accent
		Email:          " ADA@Example.COM ",
		Phone:          "   ",
		Website:        "  ",
		TurnstileToken: " tok ",
	}
	out := in.Normalize()
	if out.FirstName != "Am\u00e9lie" {
		t.Fatalf("expected NFC-composed trimmed name, got %q", out.FirstName)
	}
	if out.Email != "ada@example.com" {
		t.Fatalf("email should be trimmed and lowercased, got %q", out.Email)
	}
	if out.Phone != "" {
		t.Fatalf("whitespace-only phone should become empty, got %q", out.Phone)
	}
	if out.TurnstileToken != "tok" {
		t.Fatalf("token should be trimmed, got %q", out.TurnstileToken)
	}
	if out.IsHoneypotFilled() {
		t.Fatalf("whitespace-only honeypot must not count as filled")
	}
}

func TestSubmissionInput_IsHoneypotFilled(t *testing.T) {
	in := validInput()
	if in.IsHoneypotFilled() {
		t.Fatalf("empty honeypot reported as filled")
	}
	in.Website = "http://spam.example"
	if !in.IsHoneypotFilled() {
		t.Fatalf("non-empty honeypot not detected")
	}
}

func TestSubmissionInput_Validate(t *testing.T) {
	if err := validInput().Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}

	bad := validInput()
	bad.FirstName = ""
	bad.Email = "not-an-email"
	bad.Message = strings.Repeat("x", 5001)

	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	issues := Issues(err)
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %+v", len(issues), issues)
	}
	paths := map[string]string{}
	for _, is := range issues {
		if is.Name != "ValidationError" || len(is.Path) != 1 {
			t.Fatalf("unexpected issue shape: %+v", is)
		}
		paths[is.Path[0]] = is.Message
	}
	for _, f := range []string{"firstName", "email", "message"} {
		if _, ok := paths[f]; !ok {
			t.Fatalf("expected issue for %q, got %v", f, paths)
		}
	}
	if Issues(fmt.Errorf("plain")) != nil {
		t.Fatalf("non-validator errors should yield nil issues")
	}
}

func TestSubmissionInput_ToSubmission_StripsTransientFields(t *testing.T) {
	in := validInput()
	in.Phone = "555-0100"
	in.Website = "bot"
	in.TurnstileToken = "tok"

	sub := in.ToSubmission()
	if sub.DocumentID == "" || len(sub.DocumentID) != 36 {
		t.Fatalf("expected uuid documentId, got %q", sub.DocumentID)
	}
	if sub.Phone == nil || *sub.Phone != "555-0100" {
		t.Fatalf("phone not carried over: %v", sub.Phone)
	}
	if sub.Referral != nil {
		t.Fatalf("empty referral should be nil")
	}
	if sub.FullName() != "Ada Lovelace" {
		t.Fatalf("FullName() = %q", sub.FullName())
	}
}

func TestSubmissionInput_Echo(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := validInput().Echo(now)
	if s.ID != 0 {
		t.Fatalf("echo must carry the sentinel id 0, got %d", s.ID)
	}
	if !s.CreatedAt.Equal(now) || !s.PublishedAt.Equal(now) {
		t.Fatalf("echo timestamps not set: %+v", s)
	}
}
