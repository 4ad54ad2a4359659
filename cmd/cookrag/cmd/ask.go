package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tastelab/cookrag/internal/generate"
	"github.com/tastelab/cookrag/internal/search"
	"github.com/tastelab/cookrag/internal/store"
)

// newAskCmd creates the ask command, the full question-answering path:
// route the query, extract filters, rewrite for retrieval, retrieve, and
// stream the generated answer. With no arguments it runs an interactive
// loop reading questions from stdin.
func newAskCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a cooking question",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			gen, err := generate.NewService(generate.Config{
				BaseURL:         cfg.LLM.BaseURL,
				APIKey:          cfg.LLM.APIKey,
				Model:           cfg.LLM.Model,
				MaxContextChars: cfg.LLM.MaxContextChars,
			})
			if err != nil {
				return err
			}

			p, err := buildPipeline(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()

			if len(args) > 0 {
				return answerOnce(ctx, gen, p, out, strings.Join(args, " "), topK)
			}
			return askLoop(ctx, gen, p, out, topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default from config)")

	return cmd
}

// askLoop reads questions from stdin until EOF or an exit command.
func askLoop(ctx context.Context, gen *generate.Service, p *pipeline, out io.Writer, topK int) error {
	fmt.Fprintln(out, "输入问题开始提问，输入 exit 退出。")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return nil
		}
		if err := answerOnce(ctx, gen, p, out, question, topK); err != nil {
			fmt.Fprintf(out, "出错了: %v\n", err)
		}
	}
}

func answerOnce(ctx context.Context, gen *generate.Service, p *pipeline, out io.Writer, question string, topK int) error {
	route := gen.Route(ctx, question)
	filters := gen.ExtractFilters(ctx, question)
	query := gen.Rewrite(ctx, question)

	chunks, err := p.engine.Retrieve(ctx, query, filters, topK)
	if err != nil {
		return err
	}

	// Answer over whole recipes, not chunk fragments: aggregate the
	// ranked chunks back to their parent documents.
	var docs []*store.ParentDocument
	for _, hit := range search.AggregateParents(chunks, p.docs) {
		docs = append(docs, hit.Parent)
	}
	if len(docs) == 0 {
		fmt.Fprintln(out, "没有找到相关菜谱，请换个说法或给出更具体的菜名再试。")
		return nil
	}

	tokens, errs := gen.Answer(ctx, question, route, docs)
	for token := range tokens {
		fmt.Fprint(out, token)
	}
	fmt.Fprintln(out)

	if err := <-errs; err != nil {
		return fmt.Errorf("answer generation: %w", err)
	}
	return nil
}
