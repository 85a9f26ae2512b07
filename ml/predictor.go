package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Predict scores one record with a trained artifact and returns the
// probability of approval. Thresholding is left to the caller.
func Predict(row Record, a *Artifact) (float64, error) {
	if a == nil || a.Network == nil || a.Preprocessor == nil {
		return 0, ErrModelNotReady
	}
	p, err := a.Network.PredictProba(a.Preprocessor.Transform(row))
	if err != nil {
		return 0, err
	}
	return math.Min(math.Max(p, 0), 1), nil
}

// Predictor serves predictions for a single artifact and memoizes them by
// feature vector. A new artifact gets a new Predictor, so cached scores never
// cross artifacts.
type Predictor struct {
	artifact *Artifact
	cache    *lru.Cache[string, float64]
}

// NewPredictor validates a and caches up to cacheSize results. Sizes of 0 or less disable the cache.
func NewPredictor(a *Artifact, cacheSize int) (*Predictor, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	p := &Predictor{artifact: a}
	if cacheSize > 0 {
		cache, err := lru.New[string, float64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// Artifact returns the artifact being served.
func (p *Predictor) Artifact() *Artifact {
	return p.artifact
}

// Predict returns the approval probability for row.
func (p *Predictor) Predict(row Record) (float64, error) {
	features := p.artifact.Preprocessor.Transform(row)
	if p.cache == nil {
		return p.score(features)
	}
	key := vectorKey(features)
	if prob, ok := p.cache.Get(key); ok {
		return prob, nil
	}
	prob, err := p.score(features)
	if err != nil {
		return 0, err
	}
	p.cache.Add(key, prob)
	return prob, nil
}

func (p *Predictor) score(features []float64) (float64, error) {
	prob, err := p.artifact.Network.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Max(prob, 0), 1), nil
}

// CacheLen returns the number of cached results.
func (p *Predictor) CacheLen() int {
	if p.cache == nil {
		return 0
	}
	return p.cache.Len()
}

func vectorKey(features []float64) string {
	var b strings.Builder
	for i, v := range features {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
