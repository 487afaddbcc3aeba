package inferctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

// buildRootCmd constructs the Cobra command tree.
func buildRootCmd() *cobra.Command {
	server := "http://localhost:8080"
	if v := os.Getenv("INFERCTL_SERVER"); v != "" {
		server = v
	}

	root := &cobra.Command{
		Use:           "inferctl",
		Short:         "Client for the inferd upload, storage and generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", server, "inferd base URL (defaults INFERCTL_SERVER or http://localhost:8080)")

	uploadOpts := DefaultUploadOptions()
	uploadKey := types.KeyModelWeights
	uploadCmd := &cobra.Command{
		Use:     "upload <file>",
		Short:   "Upload a file in parallel chunks and commit it to stable storage",
		Example: "  inferctl upload model.gguf --key model_weights\n  inferctl upload tokenizer.json --key tokenizer",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := NewClient(server)
			n, err := c.UploadFile(args[0], uploadKey, uploadOpts, func(done, total int) {
				fmt.Fprintf(cmd.OutOrStdout(), "\r  chunk %d/%d", done, total)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\ncommitted %d bytes under %q\n", n, uploadKey)
			return nil
		},
	}
	uploadCmd.Flags().StringVar(&uploadKey, "key", uploadKey, "Storage key to commit under")
	uploadCmd.Flags().IntVar(&uploadOpts.ChunkSize, "chunk-size", uploadOpts.ChunkSize, "Chunk payload size in bytes")
	uploadCmd.Flags().IntVar(&uploadOpts.Workers, "workers", uploadOpts.Workers, "Concurrent upload workers")
	uploadCmd.Flags().IntVar(&uploadOpts.Retries, "retries", uploadOpts.Retries, "Per-chunk retries")
	root.AddCommand(uploadCmd)

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Load the model from stored artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := NewClient(server).Setup()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model loaded (history: %d tokens)\n", info.CurrentTokens)
			return nil
		},
	}
	root.AddCommand(setupCmd)

	genCfg := types.DefaultGenerationConfig()
	maxTokens := 0
	generateCmd := &cobra.Command{
		Use:     "generate <prompt>",
		Short:   "Run one generation call",
		Example: "  inferctl generate \"Why is the sky blue?\" --max-tokens 100",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := NewClient(server).Generate(types.GenerateRequest{
				Prompt:    args[0],
				Config:    &genCfg,
				MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("generation failed: %s", resp.Error)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "(%d tokens, %d compute units)\n", resp.TokensGenerated, resp.ComputeUnitsUsed)
			return nil
		},
	}
	generateCmd.Flags().Float64Var(&genCfg.Temperature, "temperature", genCfg.Temperature, "Sampling temperature (0 = greedy)")
	generateCmd.Flags().Float64Var(&genCfg.TopP, "top-p", genCfg.TopP, "Nucleus sampling mass")
	generateCmd.Flags().Float32Var(&genCfg.RepeatPenalty, "repeat-penalty", genCfg.RepeatPenalty, "Penalty for recently seen tokens")
	generateCmd.Flags().IntVar(&genCfg.RepeatLastN, "repeat-last-n", genCfg.RepeatLastN, "Penalty window size")
	generateCmd.Flags().Uint64Var(&genCfg.Seed, "seed", genCfg.Seed, "Sampler seed")
	generateCmd.Flags().IntVar(&maxTokens, "max-tokens", maxTokens, "Max tokens to generate (0 = server default)")
	root.AddCommand(generateCmd)

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the model's generation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := NewClient(server).Reset()
			return err
		},
	}
	root.AddCommand(resetCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show model state",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := NewClient(server).Info()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded: %v, history: %d tokens\n", info.Loaded, info.CurrentTokens)
			return nil
		},
	}
	root.AddCommand(infoCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show staging and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := NewClient(server).StorageStatus()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status)
			return nil
		},
	}
	root.AddCommand(statusCmd)

	return root
}

// Main runs the CLI and returns an exit code for use by cmd/inferctl.
func Main() int {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
