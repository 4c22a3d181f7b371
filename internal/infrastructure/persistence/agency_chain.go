package persistence

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// agencyChainSQL matches agency_id against root and every agency below it.
// UNION drops revisited rows so a corrupted parent cycle still terminates.
const agencyChainSQL = `agency_id IN (
	WITH RECURSIVE chain(id) AS (
		SELECT id FROM agencies WHERE id = ?
		UNION
		SELECT a.id FROM agencies a JOIN chain c ON a.parent_agency_id = c.id
	)
	SELECT id FROM chain)`

// withinAgencyChain narrows query to rows owned by root or its sub-agencies,
// the same reach ScopeGuard.CheckOwnership grants an agency-bound caller.
func withinAgencyChain(query *gorm.DB, root *uuid.UUID) *gorm.DB {
	if root == nil {
		return query
	}
	return query.Where(agencyChainSQL, *root)
}
