package main

import (
	"context"

	"github.com/smallnest/graphrag/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	workspace  string
	logLevel   string
	jsonOutput bool
}

// opener builds the runtime of a command; tests replace it
type opener func(ctx context.Context, cfg *config.Config) (*config.Runtime, error)

type app struct {
	flags globalFlags
	open  opener
}

func newRootCmd() *cobra.Command {
	return newApp(config.Open).rootCmd()
}

func newApp(open opener) *app {
	return &app{open: open}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphrag",
		Short: "graphrag - knowledge graph retrieval augmented generation",
		Long: `graphrag extracts entities and relationships from documents into a
knowledge graph and answers questions using graph and vector retrieval.

Configuration is read from --config, then .env, then the environment:
  GRAPHRAG_KV_STORAGE, GRAPHRAG_VECTOR_STORAGE, GRAPHRAG_GRAPH_STORAGE
  GRAPHRAG_DOC_STATUS_STORAGE   memory, file, postgres, redis, falkordb or sqlite
  OPENAI_API_KEY                API key of the completion and embedding models
  POSTGRES_HOST, REDIS_ADDR     shared connections`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVarP(&a.flags.workspace, "workspace", "w", "", "workspace to operate on (overrides config)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn, error or none (overrides config)")
	pf.BoolVar(&a.flags.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		a.insertCmd(),
		a.queryCmd(),
		a.statusCmd(),
		a.resumeCmd(),
		a.deleteCmd(),
		a.watchCmd(),
		a.mcpCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return nil, err
	}
	if a.flags.workspace != "" {
		cfg.Workspace = a.flags.workspace
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	return cfg, nil
}

// run loads the configuration, opens the runtime and calls fn with it
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context, rt *config.Runtime) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := a.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
