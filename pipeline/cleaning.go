package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"loanapproval/ml"
)

// CleaningRule inspects or rewrites one record. A non-nil error rejects it.
type CleaningRule interface {
	Apply(ml.Record) (ml.Record, error)
	Name() string
}

// Cleaner runs records through an ordered list of rules and keeps stats.
type Cleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats counts what the cleaner has seen since it was created.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewCleaner returns a cleaner with the given rules, or TrimTextRule and
// BlankRecordRule when none are given. Value-changing rules such as
// NegativeAmountRule are opt-in through AddRule.
func NewCleaner(rules ...CleaningRule) *Cleaner {
	if len(rules) == 0 {
		rules = []CleaningRule{
			TrimTextRule{},
			BlankRecordRule{},
		}
	}
	return &Cleaner{
		rules: rules,
		stats: CleaningStats{Issues: make(map[string]int64)},
	}
}

// AddRule appends a rule after the existing ones.
func (c *Cleaner) AddRule(rule CleaningRule) {
	c.rules = append(c.rules, rule)
}

// Clean applies every rule in order and returns the records that passed.
func (c *Cleaner) Clean(rows []ml.Record) []ml.Record {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()

	cleaned := make([]ml.Record, 0, len(rows))
	for _, original := range rows {
		c.stats.TotalProcessed++
		rec := original
		rejected := false
		for _, rule := range c.rules {
			out, err := rule.Apply(rec)
			if err != nil {
				c.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
			rec = out
		}
		if rejected {
			c.stats.Rejected++
			continue
		}
		if rec != original {
			c.stats.Corrected++
		}
		c.stats.Passed++
		cleaned = append(cleaned, rec)
	}
	c.stats.LastClean = time.Now()
	return cleaned
}

// Stats returns a copy of the current counters.
func (c *Cleaner) Stats() CleaningStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()

	stats := c.stats
	stats.Issues = make(map[string]int64, len(c.stats.Issues))
	for k, v := range c.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// TrimTextRule strips surrounding whitespace from every text field.
type TrimTextRule struct{}

func (TrimTextRule) Name() string { return "trim_text" }

func (TrimTextRule) Apply(r ml.Record) (ml.Record, error) {
	r.LoanID = strings.TrimSpace(r.LoanID)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Married = strings.TrimSpace(r.Married)
	r.Dependents = strings.TrimSpace(r.Dependents)
	r.Education = strings.TrimSpace(r.Education)
	r.SelfEmployed = strings.TrimSpace(r.SelfEmployed)
	r.PropertyArea = strings.TrimSpace(r.PropertyArea)
	r.LoanStatus = strings.TrimSpace(r.LoanStatus)
	return r, nil
}

// BlankRecordRule rejects records with no field at all, such as trailing empty lines.
type BlankRecordRule struct{}

func (BlankRecordRule) Name() string { return "blank_record" }

func (BlankRecordRule) Apply(r ml.Record) (ml.Record, error) {
	if r.IsBlank() {
		return r, fmt.Errorf("record is blank")
	}
	return r, nil
}

// NegativeAmountRule treats negative incomes and amounts as missing. Rows it
// touches lose those values before Fit, so it is not a default rule.
type NegativeAmountRule struct{}

func (NegativeAmountRule) Name() string { return "negative_amount" }

func (NegativeAmountRule) Apply(r ml.Record) (ml.Record, error) {
	for _, n := range []*ml.Number{&r.ApplicantIncome, &r.CoapplicantIncome, &r.LoanAmount, &r.LoanAmountTerm} {
		if n.Valid && n.Value < 0 {
			*n = ml.Number{}
		}
	}
	return r, nil
}
