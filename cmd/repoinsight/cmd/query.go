package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoinsight/internal/query"
)

func newQueryCmd() *cobra.Command {
	var generationMode string
	var llmProvider string

	cmd := &cobra.Command{
		Use:   "query <session-id-or-repo-url> <question>",
		Short: "Ask a question against an analyzed repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			req := query.Request{
				SessionID:      args[0],
				Question:       args[1],
				GenerationMode: generationMode,
			}
			if llmProvider != "" {
				req.LLMConfig = map[string]string{"provider": llmProvider}
			}

			resp, err := a.querySvc.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&generationMode, "mode", query.ModeService, `Generation mode: "service" answers with the LLM, "plugin" returns retrieval only`)
	cmd.Flags().StringVar(&llmProvider, "llm-provider", "", "Chat provider name from the registry")
	return cmd
}
