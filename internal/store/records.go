package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contract-validator/internal/model"
)

// exceptionColumns is the column order for the exceptions table.
var exceptionColumns = []string{
	"id", "validation_id", "invoice_id", "type", "severity", "line_index", "variance", "description", "data",
}

const exceptionColumnList = `id, validation_id, invoice_id, type, severity, line_index, variance, description, data`

// exceptionRows flattens a run's exceptions and notices for bulk insert.
// The full exception, proof included, is kept in the data column.
func exceptionRows(run *model.ValidationRun) ([][]any, error) {
	all := make([]model.ValidationException, 0, len(run.Result.Exceptions)+len(run.Result.Notices))
	all = append(all, run.Result.Exceptions...)
	all = append(all, run.Result.Notices...)

	rows := make([][]any, 0, len(all))
	for _, ex := range all {
		if ex.ID == "" {
			ex.ID = newID()
		}
		data, err := json.Marshal(ex)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{
			ex.ID, run.ID, run.InvoiceID, string(ex.Type), string(ex.Severity),
			ex.LineIndex, ex.Variance, ex.Description, string(data),
		})
	}
	return rows, nil
}

func marshalRecord(data any, tokens []model.PositionedToken) ([]byte, []byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, nil, err
	}
	if tokens == nil {
		tokens = []model.PositionedToken{}
	}
	t, err := json.Marshal(tokens)
	if err != nil {
		return nil, nil, err
	}
	return d, t, nil
}

func unmarshalRecord(data, tokens []byte, dst any, dstTokens *[]model.PositionedToken) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return eris.Wrap(err, "unmarshal record")
	}
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, dstTokens); err != nil {
			return eris.Wrap(err, "unmarshal tokens")
		}
	}
	return nil
}
