package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"loanapproval/ml"
)

const sampleCSV = `Loan_ID,Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome,CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Status
LP001002,Male,No,0,Graduate,No,5849,0,,360,1,Urban,Y
LP001003, Male ,Yes,1,Graduate,No,4583,1508,128,360,1,Rural,N
,,,,,,,,,,,,
LP001005,Male,Yes,0,Graduate,Yes,-3000,0,66,360,1,Urban,Y
`

func TestLoaderReadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loans.csv")
	if err := os.WriteFile(path, []byte("\ufeff"+sampleCSV), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cleaner := NewCleaner()
	loader, err := NewLoader(LoaderConfig{}, cleaner, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := loader.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 records, got %d", len(rows))
	}
	if rows[0].LoanID != "LP001002" {
		t.Fatalf("BOM leaked into first column: %q", rows[0].LoanID)
	}
	if rows[0].LoanAmount.Valid {
		t.Fatalf("expected missing loan amount")
	}
	if rows[1].Gender != "Male" || rows[1].LoanAmount != ml.Num(128) {
		t.Fatalf("unexpected record %+v", rows[1])
	}
	if rows[2].ApplicantIncome != ml.Num(-3000) {
		t.Fatalf("default cleaner should keep negative income, got %+v", rows[2].ApplicantIncome)
	}

	stats := cleaner.Stats()
	if stats.TotalProcessed != 4 || stats.Passed != 3 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Issues["blank_record"] != 1 {
		t.Fatalf("expected one blank record issue, got %v", stats.Issues)
	}
	if stats.Corrected != 1 {
		t.Fatalf("expected 1 corrected record, got %d", stats.Corrected)
	}
}

func TestLoaderCharset(t *testing.T) {
	text := "Loan_ID,Property_Area,Loan_Status\nLP1,Zürich,Y\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loader, err := NewLoader(LoaderConfig{Charset: "latin1"}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := loader.Read(context.Background(), strings.NewReader(encoded))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 1 || rows[0].PropertyArea != "Zürich" {
		t.Fatalf("unexpected rows %+v", rows)
	}

	if _, err := NewLoader(LoaderConfig{Charset: "no-such-charset"}, nil, nil); err == nil {
		t.Fatalf("expected unknown charset error")
	}
}

func TestLoaderErrors(t *testing.T) {
	loader, _ := NewLoader(LoaderConfig{}, nil, nil)
	if _, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatalf("expected open error")
	}
	if _, err := loader.Read(context.Background(), strings.NewReader("")); !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
	if _, err := loader.Read(context.Background(), strings.NewReader("a,b\n\"unterminated\n")); err == nil {
		t.Fatalf("expected csv parse error")
	}
}
