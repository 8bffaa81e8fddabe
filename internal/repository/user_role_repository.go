package repository

import (
	"context"

	"github.com/pesio-ai/be-st-sourcing/internal/apperrors"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
)

// UserRoleRepository resolves recipient role templates to concrete user id
// sets. It implements workflow.RoleResolver.
type UserRoleRepository struct {
	db *database.DB
}

// NewUserRoleRepository creates a new UserRoleRepository.
func NewUserRoleRepository(db *database.DB) *UserRoleRepository {
	return &UserRoleRepository{db: db}
}

// ResolveUsers returns the user ids holding a role in the program, limited
// to the given hierarchies when the role assignment is hierarchy-scoped.
// An empty result is not an error; the caller treats the recipient slot as
// vacant.
func (r *UserRoleRepository) ResolveUsers(ctx context.Context, programID, role string, hierarchyIDs []string) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM program_user_roles
		WHERE program_id = $1
		  AND role = $2
		  AND is_deleted = FALSE
		  AND (hierarchy_id IS NULL OR hierarchy_id = ANY($3))
		ORDER BY user_id
	`

	rows, err := r.db.Query(ctx, query, programID, role, hierarchyIDs)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to resolve users for role")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan user id")
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
