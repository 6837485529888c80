package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/stemsi/quizguard/internal/model"
	"github.com/stemsi/quizguard/internal/quizfile"
	"github.com/stemsi/quizguard/internal/repository"
)

func newInviteCmd(a *app) *cobra.Command {
	var (
		quizArg string
		roster  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "invite --quiz <id> --roster <roster.yaml>",
		Short: "Issue one invitation token per student on a roster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			quizID, err := uuid.Parse(quizArg)
			if err != nil {
				return fmt.Errorf("invalid --quiz: %w", err)
			}
			f, err := os.Open(roster)
			if err != nil {
				return err
			}
			defer f.Close()

			students, err := quizfile.ParseRoster(f)
			if err != nil {
				return fmt.Errorf("%s: %w", roster, err)
			}

			invitations := make([]model.Invitation, len(students))
			for i, s := range students {
				invitations[i] = model.Invitation{
					Token:       newInvitationToken(),
					QuizID:      quizID,
					StudentInfo: s,
				}
			}

			return a.withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				if _, err := repository.NewQuizRepository(pool).GetByID(ctx, quizID); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return fmt.Errorf("quiz %s not found", quizID)
					}
					return err
				}

				n, err := repository.NewInvitationRepository(pool).CreateMany(ctx, invitations)
				if err != nil {
					return fmt.Errorf("store invitations: %w", err)
				}
				a.log.Info().Int64("count", n).Str("quiz_id", quizID.String()).Msg("Invitations issued")

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ROLL\tNAME\tLINK")
				for _, inv := range invitations {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", inv.StudentInfo.RollNumber, inv.StudentInfo.Name, inviteLink(baseURL, inv.Token))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&quizArg, "quiz", "", "quiz id")
	cmd.Flags().StringVar(&roster, "roster", "", "roster YAML file")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "prefix for printed links, e.g. https://quiz.example.com/q/")
	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

// newInvitationToken returns 32 hex characters from a random UUID.
func newInvitationToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func inviteLink(base, token string) string {
	if base == "" {
		return token
	}
	return strings.TrimRight(base, "/") + "/" + token
}
