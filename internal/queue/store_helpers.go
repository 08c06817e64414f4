package queue

import (
	"database/sql"
	"errors"
	"time"

	"mediaworker/internal/jobs"
)

const jobColumns = "id, media_ref, role, status, attempts, deadline, not_before, lease_owner, lease_token, lease_until, last_error, created_at, updated_at"

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id         string
		mediaRef   string
		role       string
		statusStr  string
		attempts   int
		deadline   sql.NullString
		notBefore  sql.NullString
		leaseOwner sql.NullString
		leaseToken sql.NullString
		leaseUntil sql.NullString
		lastError  sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&mediaRef,
		&role,
		&statusStr,
		&attempts,
		&deadline,
		&notBefore,
		&leaseOwner,
		&leaseToken,
		&leaseUntil,
		&lastError,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:         id,
		MediaRef:   mediaRef,
		Role:       jobs.Role(role),
		Status:     Status(statusStr),
		Attempts:   attempts,
		LeaseOwner: leaseOwner.String,
		LeaseToken: leaseToken.String,
		LastError:  lastError.String,
		Deadline:   parseNullableTime(deadline),
		NotBefore:  parseNullableTime(notBefore),
		LeaseUntil: parseNullableTime(leaseUntil),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
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
