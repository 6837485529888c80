// Command quizctl administers quizguard: schema migrations, quiz import and
// invitation issuing.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/quizguard/internal/config"
	"github.com/stemsi/quizguard/internal/database"
	"github.com/stemsi/quizguard/internal/logger"
)

type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:           "quizctl",
		Short:         "Administer quizguard quizzes and invitations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.cfg = config.Load()
			level := a.cfg.LogLevel
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				level = "debug"
			}
			a.log = logger.Setup(level, "pretty")
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newMigrateCmd(a),
		newImportCmd(a),
		newInviteCmd(a),
	)

	if err := root.Execute(); err != nil {
		a.log.Error().Err(err).Msg("quizctl failed")
		os.Exit(1)
	}
}

// withPool runs fn with a connected pool and a bounded context.
func (a *app) withPool(fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}
