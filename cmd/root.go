package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/webchat-ai/webchat/internal/exitcode"
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Emit debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&flagEngine, "engine", "", "Engine mode: local or remote")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "Model override for the active engine")
}

var rootCmd = &cobra.Command{
	Use:   "webchat",
	Short: "Chat with local or remote language models",
	Long: `webchat is a streaming chat client with two interchangeable backends:
a locally managed inference engine and a remote OpenAI-compatible API.

Examples:
  webchat chat                        # interactive chat
  webchat chat --engine local         # force the local engine
  webchat chat --model gpt-4o         # override the model

  webchat sessions                    # list saved conversations
  webchat sessions clear              # delete all conversations

  webchat serve                       # run the API proxy`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var (
	flagDebug  bool
	flagEngine string
	flagModel  string
)

// newLogger builds the process logger. Without --debug everything is
// discarded; the REPL owns stdout.
func newLogger() *zap.Logger {
	if !flagDebug {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(exitcode.ExitError); ok {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitcode.Error)
	}
}
