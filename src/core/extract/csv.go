package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// CSV flattens tabular data into one line of text per record, cells joined by
// ", ". Ragged rows are accepted; real-world exports rarely keep a uniform
// column count.
type CSV struct{}

func NewCSV() *CSV {
	return &CSV{}
}

func (c *CSV) ContentTypes() []string {
	return []string{"text/csv"}
}

func (c *CSV) Extract(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var b strings.Builder
	for i, record := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(record, ", "))
	}
	return b.String(), nil
}
