package services

import (
	"bytes"
	"encoding/csv"
	"sort"

	"github.com/eclore/eclore/internal/models"
)

// ExportAnswersCSV renders the user's questionnaire answers into a
// long-format CSV, ordered by section then question id for stable output.
func ExportAnswersCSV(answers []models.Answer) ([]byte, error) {
	rows := append([]models.Answer(nil), answers...)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SectionID == rows[j].SectionID {
			return rows[i].QuestionID < rows[j].QuestionID
		}
		return rows[i].SectionID < rows[j].SectionID
	})

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"section_id", "question_id", "value", "label"})
	for _, r := range rows {
		rec := []string{r.SectionID, r.QuestionID, itoa(r.Value), r.Label}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportCheckInsCSV renders the check-in history into a CSV, one row per
// calendar day, oldest first.
func ExportCheckInsCSV(checkIns []models.CheckIn) ([]byte, error) {
	rows := append([]models.CheckIn(nil), checkIns...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"date", "mood", "note"})
	for _, r := range rows {
		if err := w.Write([]string{r.Date, itoa(r.Mood), r.Note}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := false
	if i < 0 {
		neg = true
		i = -i
	}
	var b [20]byte
	bp := len(b)
	for i > 0 {
		bp--
		b[bp] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		bp--
		b[bp] = '-'
	}
	return string(b[bp:])
}
