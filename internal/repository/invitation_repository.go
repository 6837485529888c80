package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizguard/internal/model"
)

// InvitationRepository handles invitation data access.
type InvitationRepository struct {
	pool *pgxpool.Pool
}

// NewInvitationRepository creates a new InvitationRepository.
func NewInvitationRepository(pool *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{pool: pool}
}

// GetByToken retrieves an invitation by its share token.
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*model.Invitation, error) {
	inv := &model.Invitation{}
	err := r.pool.QueryRow(ctx,
		`SELECT token, quiz_id, name, email, roll_number, section
		 FROM invitations WHERE token = $1`, token,
	).Scan(&inv.Token, &inv.QuizID, &inv.StudentInfo.Name, &inv.StudentInfo.Email,
		&inv.StudentInfo.RollNumber, &inv.StudentInfo.Section)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// CreateMany bulk-inserts invitations with COPY.
func (r *InvitationRepository) CreateMany(ctx context.Context, invitations []model.Invitation) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"invitations"},
		[]string{"token", "quiz_id", "name", "email", "roll_number", "section"},
		pgx.CopyFromSlice(len(invitations), func(i int) ([]interface{}, error) {
			inv := invitations[i]
			return []interface{}{
				inv.Token, inv.QuizID, inv.StudentInfo.Name, inv.StudentInfo.Email,
				inv.StudentInfo.RollNumber, inv.StudentInfo.Section,
			}, nil
		}),
	)
}
