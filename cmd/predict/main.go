package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/store"
)

// predict scores JSON records read from stdin, one object per line, against
// the model saved in a sqlite store.
func main() {
	storePath := flag.String("store", "data/loanapproval.db", "sqlite store path")
	threshold := flag.Float64("threshold", 0.5, "approval threshold")
	flag.Parse()

	database, err := db.InitDB(*storePath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer database.Close()

	res := store.NewModelStore(database).Load(context.Background())
	if res.Status != store.StatusFound {
		log.Fatalf("no usable model (%s): %v", res.Status, res.Err)
	}
	predictor, err := ml.NewPredictor(res.Artifact(), 0)
	if err != nil {
		log.Fatalf("invalid model: %v", err)
	}

	decoder := json.NewDecoder(os.Stdin)
	encoder := json.NewEncoder(os.Stdout)
	for decoder.More() {
		var row ml.Record
		if err := decoder.Decode(&row); err != nil {
			log.Fatalf("invalid record: %v", err)
		}
		p, err := predictor.Predict(row)
		if err != nil {
			log.Fatalf("prediction failed: %v", err)
		}
		encoder.Encode(map[string]interface{}{
			"loan_id":     row.LoanID,
			"probability": p,
			"approved":    p >= *threshold,
		})
	}
}
