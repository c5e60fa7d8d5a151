package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lab-notebook/notebook_go/cmd/ask"
	"lab-notebook/notebook_go/cmd/mcp"
	"lab-notebook/notebook_go/cmd/project"
	"lab-notebook/notebook_go/cmd/server"
)

var cfgFile string

// rootCmd is the base command when the binary is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "notebook",
	Short: "AI-assisted laboratory notebook over plain project folders",
	Long: `An AI-assisted laboratory notebook. Each experiment lives in a plain
folder whose README.md is the authoritative record; the assistant reads it,
answers from it, and records new results into it through a reviewable
change history. Uploaded instrument files are converted to text in the
background and summarized into the notes.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.notebook.yaml)")
	rootCmd.PersistentFlags().String("db-path", "data/notebook.db", "catalog database path")
	rootCmd.PersistentFlags().String("queue-path", "data/jobs.db", "conversion queue database path")
	rootCmd.PersistentFlags().String("provider", "openai", "LLM provider (openai, anthropic, googleai)")
	rootCmd.PersistentFlags().String("model", "", "model id (provider default when empty)")
	rootCmd.PersistentFlags().Float64("temperature", 0.2, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-turns", 8, "maximum tool-calling turns per question")
	rootCmd.PersistentFlags().String("search-endpoint", "", "literature search endpoint (disabled when empty)")
	rootCmd.PersistentFlags().String("search-api-key", "", "literature search API key")
	rootCmd.PersistentFlags().String("pandoc-bin", "", "external converter binary (default pandoc)")
	rootCmd.PersistentFlags().Int("workers", 2, "conversion workers")
	rootCmd.PersistentFlags().Duration("call-timeout", 60*time.Second, "timeout per reasoning-step call")

	rootCmd.PersistentFlags().String("log-file", "", "log file path (optional)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	for _, name := range []string{
		"db-path", "queue-path", "provider", "model", "temperature", "max-turns",
		"search-endpoint", "search-api-key", "pandoc-bin", "workers", "call-timeout",
		"log-file", "log-level", "log-format",
	} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(ask.AskCmd)
	rootCmd.AddCommand(project.ProjectCmd)
	rootCmd.AddCommand(server.ServerCmd)
	rootCmd.AddCommand(mcp.MCPCmd)
}

// initConfig loads .env files, the optional config file and the environment.
func initConfig() {
	// Provider keys come from .env when present, else the system environment.
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".notebook")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
