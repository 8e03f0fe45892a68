package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/mindloop/internal/channel"
	"github.com/stellarlinkco/mindloop/internal/config"
	"github.com/stellarlinkco/mindloop/internal/engine"
	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/loop"
	"github.com/stellarlinkco/mindloop/internal/mode"
)

// EngineFactory builds an engine; tests replace it to inject fakes.
type EngineFactory func(cfg *config.Config, console channel.ConsoleIO) (*engine.Engine, error)

func defaultEngineFactory(cfg *config.Config, console channel.ConsoleIO) (*engine.Engine, error) {
	return engine.New(cfg, engine.Options{Console: console})
}

var (
	newEngine EngineFactory = defaultEngineFactory
	stdin     io.Reader     = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:           "mindloop",
	Short:         "mindloop - a mode-switching agent with long-term memory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent loops and the enabled channels",
	RunE:  runAgent,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config, mode table and identity",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent state and memory size",
	RunE:  runStatus,
}

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List operating modes",
	RunE:  runModes,
}

var recallCmd = &cobra.Command{
	Use:   "recall [query]",
	Short: "Search long-term memory as seen from a mode",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecall,
}

var (
	recallMode     string
	recallEmotions []string
)

func init() {
	recallCmd.Flags().StringVar(&recallMode, "mode", "", "mode to recall from (default: active mode)")
	recallCmd.Flags().StringSliceVar(&recallEmotions, "emotion", nil, "emotion tags; without a query only exact tag matches are returned")
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd, modesCmd, recallCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, channel.ConsoleIO{In: stdin, Out: cmd.OutOrStdout()})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if cfg.Channels.Console.Enabled {
		fmt.Fprintln(cmd.OutOrStdout(), "mindloop running (type '/exit' to quit)")
	}
	return e.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		cfg.Agent.ModesFile = filepath.Join(config.ConfigDir(), "modes.yaml")
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Agent.ModesFile != "" {
		if _, err := os.Stat(cfg.Agent.ModesFile); os.IsNotExist(err) {
			if err := mode.WriteRegistryFile(cfg.Agent.ModesFile, mode.Builtin(), cfg.Agent.DefaultMode); err != nil {
				return err
			}
			fmt.Fprintf(out, "  Created: %s\n", cfg.Agent.ModesFile)
		}
	}

	files, err := filestore.New(cfg.Agent.DataDir)
	if err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := loop.SaveIdentityIfMissing(files); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Project.Root, cfg.Project.Incubator), 0755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	fmt.Fprintf(out, "Data dir ready: %s\n", cfg.Agent.DataDir)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set provider keys\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set GEMINI_API_KEY / OPENAI_API_KEY / ANTHROPIC_API_KEY")
	fmt.Fprintln(out, "  3. Run 'mindloop run'")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}
	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Data dir: %s\n", cfg.Agent.DataDir)
	fmt.Fprintf(out, "Default provider: %s\n", cfg.LLM.DefaultProvider)
	for _, id := range sortedProviders(cfg) {
		fmt.Fprintf(out, "  %s (%s): key %s\n", id, cfg.Providers[id].Type, maskKey(cfg.Providers[id].APIKey))
	}
	fmt.Fprintf(out, "Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	e, err := newEngine(cfg, channel.ConsoleIO{})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer e.Close()

	st, err := e.Status(cmd.Context())
	if err != nil {
		return err
	}
	intent := st.Intent
	if intent == "" {
		intent = "(none)"
	}
	fmt.Fprintf(out, "Mode: %s\n", st.Mode)
	fmt.Fprintf(out, "Intent: %s\n", intent)
	if !st.LastActive.IsZero() {
		fmt.Fprintf(out, "Last active: %s\n", st.LastActive.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "Memories: %d\n", st.Memories)
	fmt.Fprintf(out, "Monitors: %s\n", strings.Join(st.Jobs, ", "))
	return nil
}

func runModes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := mode.LoadRegistryFile(cfg.Agent.ModesFile, cfg.Agent.DefaultMode)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range reg.All() {
		marker := " "
		if d.ID == reg.Default().ID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-10s %-6s %s\n", marker, d.ID, d.Type, strings.Join(d.Allowed, " "))
	}
	return nil
}

func runRecall(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) > 0 {
		query = strings.TrimSpace(args[0])
	}
	if query == "" && len(recallEmotions) == 0 {
		return fmt.Errorf("give a query or at least one --emotion")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := newEngine(cfg, channel.ConsoleIO{})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer e.Close()

	mems, err := e.Recall(cmd.Context(), recallMode, query, recallEmotions)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(mems) == 0 {
		fmt.Fprintln(out, "No memories found.")
		return nil
	}
	for i, m := range mems {
		fmt.Fprintf(out, "%d. [%s %.2f] %s\n", i+1, m.ModeID, m.Score, m.Essence)
		if m.Lesson != "" {
			fmt.Fprintf(out, "   lesson: %s\n", m.Lesson)
		}
		if len(m.Emotions) > 0 {
			fmt.Fprintf(out, "   emotions: %s\n", strings.Join(m.Emotions, ", "))
		}
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}

func sortedProviders(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
