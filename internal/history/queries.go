package history

// SQL queries for the PostgreSQL store.
const (
	queryInsertRecord = `
INSERT INTO history_records (id, name, created_date, baseline_metrics, current_metrics, config_at_save, savings_euro, carbon_offset_percent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	// seq breaks ties between records saved within the same instant.
	queryListRecords = `
SELECT id, name, created_date, baseline_metrics, current_metrics, config_at_save, savings_euro, carbon_offset_percent
FROM history_records
ORDER BY created_date DESC, seq DESC`

	queryGetRecord = `
SELECT id, name, created_date, baseline_metrics, current_metrics, config_at_save, savings_euro, carbon_offset_percent
FROM history_records
WHERE id = $1`

	queryRenameRecord = `
UPDATE history_records SET name = $2
WHERE id = $1
RETURNING id, name, created_date, baseline_metrics, current_metrics, config_at_save, savings_euro, carbon_offset_percent`
)
