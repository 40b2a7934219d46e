package evaluate

import (
	"encoding/csv"
	"io"
	"strconv"
)

func ratio(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

// WriteCSV writes one row per category and a closing MACRO row whose
// support column is the gold total.
func WriteCSV(w io.Writer, r Result) error {
	cw := csv.NewWriter(w)
	rows := [][]string{{"category", "precision", "recall", "f1", "support", "tp", "fp", "fn"}}
	for _, m := range r.PerCategory {
		rows = append(rows, []string{
			m.Category,
			ratio(m.Precision),
			ratio(m.Recall),
			ratio(m.F1),
			strconv.Itoa(m.Support),
			strconv.Itoa(m.TruePositives),
			strconv.Itoa(m.FalsePositives),
			strconv.Itoa(m.FalseNegatives),
		})
	}
	rows = append(rows, []string{
		"MACRO", ratio(r.MacroPrecision), ratio(r.MacroRecall), ratio(r.MacroF1),
		strconv.Itoa(r.TotalGold), "", "", "",
	})
	return cw.WriteAll(rows)
}
