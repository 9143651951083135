package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/autodocgen/boarddocs/pkg/config"
	"github.com/autodocgen/boarddocs/pkg/database"
	"github.com/autodocgen/boarddocs/pkg/ha"
	"github.com/autodocgen/boarddocs/pkg/legacy"
)

var (
	importURI     string
	importMongoDB string
	importDBType  string
	importDSN     string
	importTimeout time.Duration
)

var importMongoCmd = &cobra.Command{
	Use:   "import-mongo",
	Short: "Copy tokens, boards, documents and notifications from MongoDB",
	Long: `Copy the data of a Mongo-backed deployment into the server database.

The target schema is migrated first. Rows that already exist are left
untouched, so the import can be re-run.`,
	Args: cobra.NoArgs,
	RunE: runImportMongo,
}

func init() {
	f := importMongoCmd.Flags()
	f.StringVar(&importURI, "uri", os.Getenv("MONGO_URI"), "MongoDB connection URI (env MONGO_URI)")
	f.StringVar(&importMongoDB, "mongo-db", envOr("DB_NAME", "Doc_Gen"), "MongoDB database name (env DB_NAME)")
	f.StringVar(&importDBType, "db-type", envOr("DATABASE_TYPE", "sqlite"), "Target database type (postgres, mysql or sqlite)")
	f.StringVar(&importDSN, "dsn", os.Getenv("DATABASE_DSN"), "Target database DSN (env DATABASE_DSN)")
	f.DurationVar(&importTimeout, "timeout", 30*time.Minute, "Give up after this long")
}

func runImportMongo(cmd *cobra.Command, args []string) error {
	if importURI == "" {
		return fmt.Errorf("--uri is required")
	}
	if importDSN == "" {
		return fmt.Errorf("--dsn is required")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), importTimeout)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

	db, err := database.Open(config.DatabaseConfig{Type: importDBType, DSN: importDSN})
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, ha.NewMigrationLocker(db, ha.MigrationLockName)); err != nil {
		return err
	}

	client, err := legacy.Connect(ctx, importURI)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	report, err := legacy.NewImporter(client, importMongoDB, legacy.NewSink(db), logger).Run(ctx)
	if report != nil {
		if printErr := printImportReport(cmd, report); printErr != nil && err == nil {
			err = printErr
		}
	}
	return err
}

func printImportReport(cmd *cobra.Command, r *legacy.Report) error {
	if structured() {
		return printOutput(cmd.OutOrStdout(), r)
	}
	row := func(name string, c legacy.Counts) []string {
		return []string{name, fmt.Sprint(c.Read), fmt.Sprint(c.Imported), fmt.Sprint(c.Skipped)}
	}
	printTable(cmd.OutOrStdout(), []string{"Collection", "Read", "Imported", "Skipped"}, [][]string{
		row(legacy.TokensCollection, r.Tokens),
		row(legacy.BoardMapCollection, r.Boards),
		row(legacy.GeneratedDocsCollection, r.Documents),
		row(legacy.NotificationsCollection, r.Notifications),
	})
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
