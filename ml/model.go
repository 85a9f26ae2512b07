package ml

// Scorer turns a raw record into an approval probability.
type Scorer interface {
	Predict(row Record) (float64, error)
}

// ArtifactScorer is a Scorer that can report the artifact it serves.
type ArtifactScorer interface {
	Scorer
	Artifact() *Artifact
}

var _ ArtifactScorer = (*Predictor)(nil)
