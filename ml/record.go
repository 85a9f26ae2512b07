package ml

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	ColApplicantIncome   = "ApplicantIncome"
	ColCoapplicantIncome = "CoapplicantIncome"
	ColLoanAmount        = "LoanAmount"
	ColLoanAmountTerm    = "Loan_Amount_Term"
	ColCreditHistory     = "Credit_History"

	ColGender       = "Gender"
	ColMarried      = "Married"
	ColDependents   = "Dependents"
	ColEducation    = "Education"
	ColSelfEmployed = "Self_Employed"
	ColPropertyArea = "Property_Area"

	ColLoanID     = "Loan_ID"
	ColLoanStatus = "Loan_Status"

	approvedStatus = "Y"
)

var numericColumns = []string{
	ColApplicantIncome,
	ColCoapplicantIncome,
	ColLoanAmount,
	ColLoanAmountTerm,
	ColCreditHistory,
}

var categoricalColumns = []string{
	ColGender,
	ColMarried,
	ColDependents,
	ColEducation,
	ColSelfEmployed,
	ColPropertyArea,
}

// NumericColumns returns the numeric columns in declaration order.
func NumericColumns() []string {
	return append([]string(nil), numericColumns...)
}

// CategoricalColumns returns the categorical columns in declaration order.
func CategoricalColumns() []string {
	return append([]string(nil), categoricalColumns...)
}

// Number is an optional numeric field. The zero value is missing.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a present Number, or a missing one for NaN and infinities.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{Value: v, Valid: true}
}

// ParseNumber parses a raw cell. Empty or non-numeric text yields a missing Number.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Number{}
	}
	return Num(v)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = ParseNumber(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*n = Number{}
		return nil
	}
	*n = Num(v)
	return nil
}

// Record is one raw loan application. No field is guaranteed present.
type Record struct {
	LoanID string `json:"Loan_ID,omitempty"`

	Gender       string `json:"Gender,omitempty"`
	Married      string `json:"Married,omitempty"`
	Dependents   string `json:"Dependents,omitempty"`
	Education    string `json:"Education,omitempty"`
	SelfEmployed string `json:"Self_Employed,omitempty"`
	PropertyArea string `json:"Property_Area,omitempty"`

	ApplicantIncome   Number `json:"ApplicantIncome"`
	CoapplicantIncome Number `json:"CoapplicantIncome"`
	LoanAmount        Number `json:"LoanAmount"`
	LoanAmountTerm    Number `json:"Loan_Amount_Term"`
	CreditHistory     Number `json:"Credit_History"`

	LoanStatus string `json:"Loan_Status,omitempty"`
}

// NumericValue returns the named numeric column, missing for unknown names.
func (r Record) NumericValue(col string) Number {
	switch col {
	case ColApplicantIncome:
		return r.ApplicantIncome
	case ColCoapplicantIncome:
		return r.CoapplicantIncome
	case ColLoanAmount:
		return r.LoanAmount
	case ColLoanAmountTerm:
		return r.LoanAmountTerm
	case ColCreditHistory:
		return r.CreditHistory
	}
	return Number{}
}

// CategoricalValue returns the trimmed value of a categorical column.
func (r Record) CategoricalValue(col string) string {
	var v string
	switch col {
	case ColGender:
		v = r.Gender
	case ColMarried:
		v = r.Married
	case ColDependents:
		v = r.Dependents
	case ColEducation:
		v = r.Education
	case ColSelfEmployed:
		v = r.SelfEmployed
	case ColPropertyArea:
		v = r.PropertyArea
	}
	return strings.TrimSpace(v)
}

// SetField assigns a raw text cell by column name. Unknown columns are ignored.
func (r *Record) SetField(col, raw string) {
	switch col {
	case ColLoanID:
		r.LoanID = strings.TrimSpace(raw)
	case ColGender:
		r.Gender = raw
	case ColMarried:
		r.Married = raw
	case ColDependents:
		r.Dependents = raw
	case ColEducation:
		r.Education = raw
	case ColSelfEmployed:
		r.SelfEmployed = raw
	case ColPropertyArea:
		r.PropertyArea = raw
	case ColApplicantIncome:
		r.ApplicantIncome = ParseNumber(raw)
	case ColCoapplicantIncome:
		r.CoapplicantIncome = ParseNumber(raw)
	case ColLoanAmount:
		r.LoanAmount = ParseNumber(raw)
	case ColLoanAmountTerm:
		r.LoanAmountTerm = ParseNumber(raw)
	case ColCreditHistory:
		r.CreditHistory = ParseNumber(raw)
	case ColLoanStatus:
		r.LoanStatus = strings.TrimSpace(raw)
	}
}

// Label reports whether the record is labeled and, if so, whether it was approved.
func (r Record) Label() (approved bool, ok bool) {
	status := strings.TrimSpace(r.LoanStatus)
	if status == "" {
		return false, false
	}
	return status == approvedStatus, true
}

// IsBlank reports whether the record carries no field at all.
func (r Record) IsBlank() bool {
	if strings.TrimSpace(r.LoanID) != "" || strings.TrimSpace(r.LoanStatus) != "" {
		return false
	}
	for _, col := range categoricalColumns {
		if r.CategoricalValue(col) != "" {
			return false
		}
	}
	for _, col := range numericColumns {
		if r.NumericValue(col).Valid {
			return false
		}
	}
	return true
}
