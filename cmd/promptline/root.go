package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	transcriptcmder "github.com/papercomputeco/promptline/cmd/promptline/transcript"
	"github.com/papercomputeco/promptline/driver"
	"github.com/papercomputeco/promptline/pkg/engine/checkpoint"
	"github.com/papercomputeco/promptline/pkg/logger"
	"github.com/papercomputeco/promptline/pkg/sampling"
)

const promptlineLongDesc string = `Serve text completions over standard input and output.

promptline loads a model once, then reads one request record per line
from stdin and writes one response record per line to stdout. A
request looks like:

  {"input_text":"Once upon a time","n_predict":"32","seed":"7"}

Every field is a string and every field is optional. Fields left out
take the process defaults set by flags or the config file. The lines
exit(); and quit(); end the session. Logs go to stderr.

Settings are taken from flags first, then the config file
($PROMPTLINE_CONFIG_DIR/config.toml by default), then built-in
defaults.

Examples:
  promptline -m models/tiny.json
  promptline -m models/tiny.json -c 256 -n 64 --temp 0.8 --transcript ~/.promptline/transcript.db
  promptline --config ./promptline.toml --announce`

const promptlineShortDesc string = "Line-oriented text completion driver"

type promptlineCommander struct {
	configPath string
	flags      driver.Config
}

func NewPromptlineCmd() *cobra.Command {
	return newPromptlineCommander().command()
}

func newPromptlineCommander() *promptlineCommander {
	return &promptlineCommander{flags: driver.DefaultConfig()}
}

func (cmder *promptlineCommander) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "promptline",
		Short:         promptlineShortDesc,
		Long:          promptlineLongDesc,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cmder.configPath, "config", "", "Path to a TOML config file")
	f.StringVarP(&cmder.flags.ModelPath, "model", "m", "", "Path to the model checkpoint")
	f.IntVarP(&cmder.flags.ContextSize, "ctx_size", "c", cmder.flags.ContextSize, "Context window size in tokens")
	f.IntVarP(&cmder.flags.Threads, "threads", "t", cmder.flags.Threads, "Threads per evaluation")
	f.Int64VarP(&cmder.flags.Defaults.Seed, "seed", "s", cmder.flags.Defaults.Seed, "RNG seed, negative picks one per request")
	f.IntVarP(&cmder.flags.Defaults.NumPredict, "n_predict", "n", cmder.flags.Defaults.NumPredict, "Tokens to predict")
	f.IntVar(&cmder.flags.Defaults.TopK, "top_k", cmder.flags.Defaults.TopK, "Top-k sampling, 0 keeps the whole vocabulary")
	f.Float64Var(&cmder.flags.Defaults.TopP, "top_p", cmder.flags.Defaults.TopP, "Top-p sampling")
	f.Float64Var(&cmder.flags.Defaults.Temperature, "temp", cmder.flags.Defaults.Temperature, "Sampling temperature")
	f.IntVar(&cmder.flags.Defaults.RepeatLastN, "repeat_last_n", cmder.flags.Defaults.RepeatLastN, "Recent tokens considered for the repeat penalty")
	f.Float64Var(&cmder.flags.Defaults.RepeatPenalty, "repeat_penalty", cmder.flags.Defaults.RepeatPenalty, "Penalty for repeated tokens")
	f.BoolVar(&cmder.flags.Defaults.Verbose, "verbose", false, "Enable debug logging")
	f.BoolVar(&cmder.flags.Announce, "announce", false, "Write an info record before the first request")
	f.BoolVar(&cmder.flags.SuppressInvalidErrors, "suppress-invalid-errors", false, "Log invalid requests instead of answering them")
	f.StringVar(&cmder.flags.TranscriptPath, "transcript", "", "Record every turn in this SQLite database")
	f.IntVar(&cmder.flags.MaxLineBytes, "max-line-bytes", cmder.flags.MaxLineBytes, "Longest accepted request line")

	cmd.AddCommand(transcriptcmder.NewTranscriptCmd())

	return cmd
}

func (c *promptlineCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.ModelPath == "" {
		return errors.New("no model given: pass --model or set model in the config file")
	}

	log := logger.NewLogger(cfg.Defaults.Verbose)
	defer log.Sync()

	model, err := checkpoint.Load(cfg.ModelPath, cfg.ContextSize)
	if err != nil {
		return fmt.Errorf("could not load model %s: %w", cfg.ModelPath, err)
	}
	defer model.Close()
	log.Info("model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("tokenization", model.Tokenization()),
	)

	d, err := driver.New(cfg, model, sampling.TopPTopK{}, log)
	if err != nil {
		return fmt.Errorf("could not start driver: %w", err)
	}
	defer d.Close()

	return d.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// resolveConfig layers explicitly set flags over the config file over the
// built-in defaults.
func (c *promptlineCommander) resolveConfig(cmd *cobra.Command) (driver.Config, error) {
	var (
		cfg driver.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = driver.LoadConfig(c.configPath)
	} else {
		cfg, err = driver.LoadDefaultConfig()
	}
	if err != nil {
		return driver.Config{}, err
	}

	f := cmd.Flags()
	overrides := map[string]func(){
		"model":                   func() { cfg.ModelPath = c.flags.ModelPath },
		"ctx_size":                func() { cfg.ContextSize = c.flags.ContextSize },
		"threads":                 func() { cfg.Threads = c.flags.Threads },
		"seed":                    func() { cfg.Defaults.Seed = c.flags.Defaults.Seed },
		"n_predict":               func() { cfg.Defaults.NumPredict = c.flags.Defaults.NumPredict },
		"top_k":                   func() { cfg.Defaults.TopK = c.flags.Defaults.TopK },
		"top_p":                   func() { cfg.Defaults.TopP = c.flags.Defaults.TopP },
		"temp":                    func() { cfg.Defaults.Temperature = c.flags.Defaults.Temperature },
		"repeat_last_n":           func() { cfg.Defaults.RepeatLastN = c.flags.Defaults.RepeatLastN },
		"repeat_penalty":          func() { cfg.Defaults.RepeatPenalty = c.flags.Defaults.RepeatPenalty },
		"verbose":                 func() { cfg.Defaults.Verbose = c.flags.Defaults.Verbose },
		"announce":                func() { cfg.Announce = c.flags.Announce },
		"suppress-invalid-errors": func() { cfg.SuppressInvalidErrors = c.flags.SuppressInvalidErrors },
		"transcript":              func() { cfg.TranscriptPath = c.flags.TranscriptPath },
		"max-line-bytes":          func() { cfg.MaxLineBytes = c.flags.MaxLineBytes },
	}
	for name, apply := range overrides {
		if f.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return driver.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
