package ml

import (
	"fmt"
	"math/rand"
)

func labeledRow(income float64, area string, status string) Record {
	return Record{
		ApplicantIncome: Num(income),
		LoanAmount:      Num(120),
		CreditHistory:   Num(1),
		PropertyArea:    area,
		LoanStatus:      status,
	}
}

// syntheticRows builds a dataset whose label follows credit history.
func syntheticRows(n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))
	areas := []string{"Urban", "Rural", "Semiurban"}
	genders := []string{"Male", "Female"}
	rows := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		credit := float64(rng.Intn(2))
		status := "N"
		if credit == 1 {
			status = "Y"
		}
		rows = append(rows, Record{
			LoanID:            fmt.Sprintf("LP%06d", i),
			Gender:            genders[rng.Intn(len(genders))],
			Married:           "Yes",
			Dependents:        fmt.Sprint(rng.Intn(3)),
			Education:         "Graduate",
			SelfEmployed:      "No",
			PropertyArea:      areas[rng.Intn(len(areas))],
			ApplicantIncome:   Num(2000 + rng.Float64()*8000),
			CoapplicantIncome: Num(rng.Float64() * 3000),
			LoanAmount:        Num(50 + rng.Float64()*200),
			LoanAmountTerm:    Num(360),
			CreditHistory:     Num(credit),
			LoanStatus:        status,
		})
	}
	return rows
}

func smallTrainerConfig() TrainerConfig {
	cfg := DefaultTrainerConfig()
	cfg.Network.Hidden = []int{16, 8}
	return cfg
}
