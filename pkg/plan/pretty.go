package plan

import (
	"bytes"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/olekukonko/tablewriter"
)

// FormatBatches renders batches as a text table under schema.
func FormatBatches(schema *arrow.Schema, batches []arrow.Record) string {
	buf := &bytes.Buffer{}
	table := tablewriter.NewWriter(buf)
	header := make([]string, 0, len(schema.Fields()))
	for _, f := range schema.Fields() {
		header = append(header, f.Name)
	}
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	for _, batch := range batches {
		for i := 0; i < int(batch.NumRows()); i++ {
			row := make([]string, 0, batch.NumCols())
			for c := 0; c < int(batch.NumCols()); c++ {
				row = append(row, ValueString(batch.Column(c), i))
			}
			table.Append(row)
		}
	}
	table.Render()
	return buf.String()
}
