package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const featureSeparator = "__"

// Preprocessor holds the normalization and encoding statistics fitted on a
// training dataset. It is immutable once fitted; the feature order it defines
// is the layout of every vector handed to a model trained under it.
type Preprocessor struct {
	NumericMeans map[string]float64  `json:"numericMeans"`
	NumericStd   map[string]float64  `json:"numericStd"`
	Categories   map[string][]string `json:"categories"`
	FeatureOrder []string            `json:"featureOrder"`
}

// Fit computes column statistics from the rows usable for training: rows
// with a label, a credit history and a loan amount.
func Fit(rows []Record) *Preprocessor {
	clean := make([]Record, 0, len(rows))
	for _, r := range rows {
		if _, ok := r.Label(); !ok {
			continue
		}
		if !r.CreditHistory.Valid || !r.LoanAmount.Valid {
			continue
		}
		clean = append(clean, r)
	}

	pp := &Preprocessor{
		NumericMeans: make(map[string]float64, len(numericColumns)),
		NumericStd:   make(map[string]float64, len(numericColumns)),
		Categories:   make(map[string][]string, len(categoricalColumns)),
	}

	for _, col := range categoricalColumns {
		seen := make(map[string]struct{})
		vocab := make([]string, 0)
		for _, r := range clean {
			v := r.CategoricalValue(col)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			vocab = append(vocab, v)
		}
		sort.Strings(vocab)
		pp.Categories[col] = vocab
	}

	for _, col := range numericColumns {
		values := make([]float64, 0, len(clean))
		for _, r := range clean {
			if v := r.NumericValue(col); v.Valid {
				values = append(values, v.Value)
			}
		}
		pp.NumericMeans[col], pp.NumericStd[col] = meanStd(values)
	}

	pp.FeatureOrder = featureOrder(pp.Categories)
	return pp
}

// meanStd returns the mean and population standard deviation. The values are
// sorted first so the result does not depend on input order.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mean, std := stat.PopMeanStdDev(sorted, nil)
	if !isFinite(mean) || !isFinite(std) {
		mean, std = scaledMeanStd(sorted)
	}
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	return mean, std
}

// scaledMeanStd divides by the largest magnitude before summing so values near
// math.MaxFloat64 do not overflow. The results are bounded by that magnitude.
func scaledMeanStd(sorted []float64) (float64, float64) {
	scale := math.Max(math.Abs(sorted[0]), math.Abs(sorted[len(sorted)-1]))
	if scale == 0 {
		return 0, 1
	}
	scaled := make([]float64, len(sorted))
	for i, v := range sorted {
		scaled[i] = v / scale
	}
	mean, std := stat.PopMeanStdDev(scaled, nil)
	return mean * scale, std * scale
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// standardize computes (v-mean)/std without overflowing when v and mean have
// opposite signs near the float64 limits.
func standardize(v, mean, std float64) float64 {
	if d := v - mean; isFinite(d) {
		return d / std
	}
	return v/std - mean/std
}

func featureOrder(categories map[string][]string) []string {
	order := make([]string, 0, len(numericColumns))
	order = append(order, numericColumns...)
	for _, col := range categoricalColumns {
		for _, cat := range categories[col] {
			order = append(order, col+featureSeparator+cat)
		}
	}
	return order
}

// Transform turns a record into a feature vector. Missing numbers are imputed
// with the column mean; unseen categories produce an all-zero block.
func (p *Preprocessor) Transform(row Record) []float64 {
	vec := make([]float64, 0, len(p.FeatureOrder))
	for _, col := range numericColumns {
		mean := p.NumericMeans[col]
		v := mean
		if n := row.NumericValue(col); n.Valid {
			v = n.Value
		}
		vec = append(vec, standardize(v, mean, p.NumericStd[col]))
	}
	for _, col := range categoricalColumns {
		v := row.CategoricalValue(col)
		for _, cat := range p.Categories[col] {
			if v == cat {
				vec = append(vec, 1)
			} else {
				vec = append(vec, 0)
			}
		}
	}
	return vec
}

// FeatureCount returns the length of every transformed vector.
func (p *Preprocessor) FeatureCount() int {
	return len(p.FeatureOrder)
}

// Validate checks that a preprocessor, typically one decoded from storage,
// can produce vectors consistent with its own feature order.
func (p *Preprocessor) Validate() error {
	if p == nil {
		return errors.New("preprocessor is nil")
	}
	for _, col := range numericColumns {
		mean, ok := p.NumericMeans[col]
		if !ok {
			return fmt.Errorf("missing mean for %s", col)
		}
		std, ok := p.NumericStd[col]
		if !ok {
			return fmt.Errorf("missing std for %s", col)
		}
		if math.IsNaN(mean) || math.IsInf(mean, 0) {
			return fmt.Errorf("invalid mean for %s", col)
		}
		if std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
			return fmt.Errorf("invalid std for %s", col)
		}
	}
	for _, col := range categoricalColumns {
		vocab, ok := p.Categories[col]
		if !ok {
			return fmt.Errorf("missing categories for %s", col)
		}
		for i := 1; i < len(vocab); i++ {
			if vocab[i-1] >= vocab[i] {
				return fmt.Errorf("categories for %s are not sorted and unique", col)
			}
		}
	}
	want := featureOrder(p.Categories)
	if len(want) != len(p.FeatureOrder) {
		return fmt.Errorf("feature order has %d entries, expected %d", len(p.FeatureOrder), len(want))
	}
	for i := range want {
		if want[i] != p.FeatureOrder[i] {
			return fmt.Errorf("feature %d is %q, expected %q", i, p.FeatureOrder[i], want[i])
		}
	}
	return nil
}
