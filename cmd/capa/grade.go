package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-capa/internal/capa"
	"github.com/mind-engage/mindengage-capa/internal/grading"
)

var (
	problemID   string
	seed        int64
	answersPath string
)

var gradeCmd = &cobra.Command{
	Use:   "grade [problem.xml]",
	Short: "Grade a submission against a problem file",
	Long: `Builds the problem with the given seed and grades the answers in
--answers, a JSON object keyed by answer id. Prints the correctness map and
score as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runGrade,
}

var answersCmd = &cobra.Command{
	Use:   "answers [problem.xml]",
	Short: "Print a problem's correct answers",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnswers,
}

func init() {
	for _, c := range []*cobra.Command{gradeCmd, answersCmd} {
		c.Flags().StringVar(&problemID, "id", "", "Problem id (default: file name)")
		c.Flags().Int64Var(&seed, "seed", 1, "Problem seed")
	}
	gradeCmd.Flags().StringVarP(&answersPath, "answers", "a", "", "JSON answers file (required)")
	_ = gradeCmd.MarkFlagRequired("answers")
}

func loadProblem(ctx context.Context, path string) (*capa.Problem, func() error, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	id := problemID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	caps, err := buildSystem(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	sys := caps.System
	p, err := capa.New(ctx, string(raw), id, seed, registry(cfg), &sys)
	if err != nil {
		caps.Close()
		return nil, nil, err
	}
	return p, caps.Close, nil
}

func runGrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, closeFn, err := loadProblem(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	raw, err := os.ReadFile(answersPath)
	if err != nil {
		return err
	}
	var sub grading.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("answers %s: %w", answersPath, err)
	}
	cm, err := p.Grade(ctx, sub, nil)
	if err != nil {
		return err
	}
	score := 0.0
	for _, id := range p.AnswerIDs() {
		score += cm.NPoints(id)
	}
	return printJSON(cmd, map[string]interface{}{
		"correct_map": cm,
		"score":       score,
		"max_score":   p.MaxScore(),
	})
}

func runAnswers(cmd *cobra.Command, args []string) error {
	p, closeFn, err := loadProblem(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer closeFn()
	return printJSON(cmd, p.Answers())
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
