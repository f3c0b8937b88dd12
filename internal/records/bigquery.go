package records

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
)

// DefaultDataset is the BigQuery dataset holding the records table.
const DefaultDataset = "finance"

// BigQueryStore keeps records as rows of a BigQuery table, one row per
// registro_id. Writes are parameterised DML statements.
type BigQueryStore struct {
	client  *bigquery.Client
	dataset string
	table   string
	now     func() time.Time
}

// NewBigQueryStore wraps a shared BigQuery client.
func NewBigQueryStore(client *bigquery.Client, dataset, table string) *BigQueryStore {
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultCollection
	}
	return &BigQueryStore{client: client, dataset: dataset, table: table, now: time.Now}
}

// Update implements Store. Zero affected rows is reported as ErrNotFound.
func (s *BigQueryStore) Update(ctx context.Context, recordID string, u Update) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("BigQueryStore.Update: %w", err)
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE `+"`%s.%s`"+`
		SET status = @status,
		    valor_lido = @valor_lido,
		    ocr_raw = @ocr_raw,
		    updated_at = @updated_at
		WHERE registro_id = @registro_id
	`, s.dataset, s.table))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(u.Status)},
		{Name: "valor_lido", Value: u.LastReadAmount.Rat()},
		{Name: "ocr_raw", Value: u.OCRExcerpt},
		{Name: "updated_at", Value: s.now()},
		{Name: "registro_id", Value: recordID},
	}

	affected, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("BigQueryStore.Update %s: %w", recordID, err)
	}
	if affected == 0 {
		return fmt.Errorf("BigQueryStore.Update %s: %w", recordID, ErrNotFound)
	}
	return nil
}

// Delete implements Store.
func (s *BigQueryStore) Delete(ctx context.Context, recordID string) error {
	if err := ValidateID(recordID); err != nil {
		return fmt.Errorf("BigQueryStore.Delete: %w", err)
	}

	q := s.client.Query(fmt.Sprintf(`
		DELETE FROM `+"`%s.%s`"+`
		WHERE registro_id = @registro_id
	`, s.dataset, s.table))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "registro_id", Value: recordID},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("BigQueryStore.Delete %s: %w", recordID, err)
	}
	return nil
}

// runDML runs the statement to completion and returns the affected row count,
// or -1 when the job reports no query statistics.
func runDML(ctx context.Context, q *bigquery.Query) (int64, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return -1, nil
}

var _ Store = (*BigQueryStore)(nil)
