package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/stemsi/quizguard/internal/quizfile"
	"github.com/stemsi/quizguard/internal/repository"
)

func newImportCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <quiz.yaml>",
		Short: "Create a quiz and its questions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			quiz, questions, err := quizfile.ParseQuiz(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d questions, %d minutes (not imported)\n",
					quiz.Title, len(questions), quiz.DurationMinutes)
				return nil
			}

			return a.withPool(func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := repository.NewQuizRepository(pool).CreateWithQuestions(ctx, quiz, questions); err != nil {
					return err
				}
				a.log.Info().
					Str("quiz_id", quiz.ID.String()).
					Int("questions", len(questions)).
					Msg("Quiz imported")
				fmt.Fprintln(cmd.OutOrStdout(), quiz.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without importing")
	return cmd
}
