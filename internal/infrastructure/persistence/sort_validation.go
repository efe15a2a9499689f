package persistence

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ams/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// maxPageSize bounds list queries issued from the API
const maxPageSize = 500

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// SubscriptionSortFields contains allowed sort fields for subscriptions
var SubscriptionSortFields = map[string]bool{
	"id":                true,
	"created_at":        true,
	"updated_at":        true,
	"subscriber_ref":    true,
	"status":            true,
	"start_date":        true,
	"paid_through_date": true,
	"amount":            true,
}

// CatalogSortFields contains allowed sort fields for plans and billing periods
var CatalogSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"code":       true,
	"name":       true,
}

// FailureSortFields contains allowed sort fields for the failure queue
var FailureSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"last_failed_at": true,
	"attempts":       true,
	"job_type":       true,
	"status":         true,
}

// JobRunSortFields contains allowed sort fields for job runs
var JobRunSortFields = map[string]bool{
	"started_at":   true,
	"completed_at": true,
	"as_of":        true,
	"job_type":     true,
	"status":       true,
}

// applyFilters adds equality conditions for the whitelisted Filters keys.
// Unknown keys are ignored.
func applyFilters(q *gorm.DB, filter shared.Filter, columns map[string]string) *gorm.DB {
	keys := make([]string, 0, len(columns))
	for key := range columns {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v, ok := filter.Filters[key]
		if !ok || v == nil {
			continue
		}
		column := columns[key]
		switch val := v.(type) {
		case bool:
			q = q.Where(column+" = ?", val)
		default:
			s := fmt.Sprint(val)
			if s == "" {
				continue
			}
			q = q.Where(column+" = ?", s)
		}
	}
	return q
}

// applyPage adds order and pagination; a zero PageSize lists everything
// up to maxPageSize
func applyPage(q *gorm.DB, filter shared.Filter, sortFields map[string]bool, defaultSort string) *gorm.DB {
	orderBy := ValidateSortField(filter.OrderBy, sortFields, defaultSort)
	q = q.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir))

	size := filter.PageSize
	if size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	return q.Offset((page - 1) * size).Limit(size)
}

// translate maps GORM errors onto domain errors
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrConcurrencyConflict
	default:
		return err
	}
}
