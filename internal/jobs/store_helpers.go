package jobs

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, title, pdf_identity, audio_identity, pdf_file, audio_file, status, error_message, repair_pdf, progress_stage, progress_percent, progress_message, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		title           sql.NullString
		pdfIdentity     sql.NullString
		audioIdentity   sql.NullString
		pdfFile         sql.NullString
		audioFile       sql.NullString
		statusStr       string
		errorMessage    sql.NullString
		repairPDF       sql.NullInt64
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&title,
		&pdfIdentity,
		&audioIdentity,
		&pdfFile,
		&audioFile,
		&statusStr,
		&errorMessage,
		&repairPDF,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		Title:           title.String,
		PDFIdentity:     pdfIdentity.String,
		AudioIdentity:   audioIdentity.String,
		PDFFile:         pdfFile.String,
		AudioFile:       audioFile.String,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if repairPDF.Valid {
		job.RepairPDF = repairPDF.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
