package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoinsight/internal/ingest"
	"github.com/Aman-CERP/repoinsight/internal/repoident"
	"github.com/Aman-CERP/repoinsight/internal/sessionstore"
)

func newIngestCmd() *cobra.Command {
	var embeddingConfig string
	var forceUpdate bool

	cmd := &cobra.Command{
		Use:   "ingest <repo-url>",
		Short: "Synchronously ingest one repository (no broker needed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], embeddingConfig, forceUpdate)
		},
	}
	cmd.Flags().StringVar(&embeddingConfig, "embedding-config", "", `Embedding config JSON, e.g. '{"provider":"static","batch_size":32}'`)
	cmd.Flags().BoolVar(&forceUpdate, "force-update", false, "Re-clone even if a valid clone exists")
	return cmd
}

func runIngest(cmd *cobra.Command, repoURL, embeddingConfig string, forceUpdate bool) error {
	if !repoident.Validate(repoURL) {
		return fmt.Errorf("not a valid GitHub repository URL: %s", repoURL)
	}

	a, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	sessionID := uuid.NewString()
	repoID, err := repoident.Identifier(repoURL)
	if err != nil {
		return err
	}
	if err := a.sessions.CreateSession(ctx, &sessionstore.AnalysisSession{
		SessionID:            sessionID,
		RepositoryURL:        repoURL,
		RepositoryIdentifier: repoID,
		Status:               sessionstore.StatusPending,
		EmbeddingConfig:      embeddingConfig,
		CreatedAt:            time.Now().UTC(),
	}); err != nil {
		return err
	}

	progress := func(current, total int, msg string) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", current, msg)
	}
	out, err := a.orch.Run(ctx, ingest.Request{
		RepoURL:         repoURL,
		SessionID:       sessionID,
		EmbeddingConfig: embeddingConfig,
		ForceUpdate:     forceUpdate,
	}, progress, func() bool { return ctx.Err() != nil })
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
