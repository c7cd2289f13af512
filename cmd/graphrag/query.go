package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/graphrag/config"
	"github.com/smallnest/graphrag/rag/query"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	mode         string
	topK         int
	chunkTopK    int
	onlyContext  bool
	onlyPrompt   bool
	responseType string
	noCache      bool
	hlKeywords   []string
	llKeywords   []string
	timing       bool
}

type answerJSON struct {
	Mode    string `json:"mode"`
	Answer  string `json:"answer"`
	Elapsed string `json:"elapsed"`
}

func (a *app) queryCmd() *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return a.run(cmd, func(ctx context.Context, rt *config.Runtime) error {
				p, err := opts.param(rt.Config)
				if err != nil {
					return err
				}
				if a.flags.jsonOutput && p.OnlyNeedContext {
					qc, err := rt.Engine.BuildContext(ctx, question, p)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), qc)
				}
				start := time.Now()
				answer, err := rt.Engine.Query(ctx, question, p)
				if err != nil {
					return err
				}
				elapsed := time.Since(start).Round(time.Millisecond)
				rt.Logger.Debug("%s query answered in %v", p.Mode, elapsed)
				if a.flags.jsonOutput {
					return printJSON(cmd.OutOrStdout(), answerJSON{Mode: string(p.Mode), Answer: answer, Elapsed: elapsed.String()})
				}
				if opts.timing {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] answered in %v\n", p.Mode, elapsed)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.mode, "mode", "m", "", "naive, local, global or hybrid (default from config)")
	f.IntVarP(&opts.topK, "top-k", "k", 0, "entities or relationships to retrieve")
	f.IntVar(&opts.chunkTopK, "chunk-top-k", 0, "chunks to retrieve in naive mode")
	f.BoolVar(&opts.onlyContext, "only-context", false, "print the retrieved context instead of an answer")
	f.BoolVar(&opts.onlyPrompt, "only-prompt", false, "print the final prompt instead of an answer")
	f.StringVar(&opts.responseType, "response-type", "", "answer format, e.g. \"Bullet Points\"")
	f.BoolVar(&opts.noCache, "no-cache", false, "bypass the response cache")
	f.StringSliceVar(&opts.hlKeywords, "hl", nil, "high-level keywords, skips keyword extraction")
	f.StringSliceVar(&opts.llKeywords, "ll", nil, "low-level keywords, skips keyword extraction")
	f.BoolVar(&opts.timing, "timing", false, "print the query time to stderr")
	return cmd
}

func (o queryOptions) param(cfg *config.Config) (query.Param, error) {
	p, err := cfg.QueryParam(o.mode)
	if err != nil {
		return query.Param{}, err
	}
	if o.topK > 0 {
		p.TopK = o.topK
	}
	if o.chunkTopK > 0 {
		p.ChunkTopK = o.chunkTopK
	}
	if o.responseType != "" {
		p.ResponseType = o.responseType
	}
	p.OnlyNeedContext = o.onlyContext
	p.OnlyNeedPrompt = o.onlyPrompt
	p.NoCache = o.noCache
	p.HLKeywords = o.hlKeywords
	p.LLKeywords = o.llKeywords
	return p, nil
}
