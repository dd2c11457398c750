package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mrproliu/flatprof/rewrite"
)

type genOptions struct {
	write   bool
	output  string
	details string
}

func newGenCommand(configPath *string) *cobra.Command {
	opts := &genOptions{}
	cmd := &cobra.Command{
		Use:   "gen [packages]",
		Short: "Rewrite the functions marked with //flatprof:profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			if opts.details != "" {
				cfg.Details = opts.details
			}
			if len(args) == 0 {
				args = []string{"."}
			}
			return gen(cfg, opts, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&opts.write, "write", "w", false, "overwrite the source files")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write rewritten files to this directory")
	cmd.Flags().StringVar(&opts.details, "details", "", "append rewritten functions to this YAML file")
	cmd.MarkFlagsMutuallyExclusive("write", "output")
	return cmd
}

func gen(cfg Config, opts *genOptions, patterns []string, stdout io.Writer) error {
	pkgs, err := rewrite.Load("", patterns...)
	if err != nil {
		return err
	}
	details, closeDetails, err := openDetails(cfg.Details)
	if err != nil {
		return err
	}
	defer closeDetails()

	changed := 0
	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			if !rewrite.HasDirective(file.Src) {
				continue
			}
			res, err := rewrite.Transform(file, rewrite.Options{Defaults: cfg.Defaults(), Details: details})
			if err != nil {
				return err
			}
			if !res.Changed() {
				continue
			}
			var buf bytes.Buffer
			if err := rewrite.WriteFile(res.File, &buf); err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			if err := emit(opts, file.Name, buf.Bytes(), stdout); err != nil {
				return err
			}
			changed++
			log.Info().Strs("funcs", res.Funcs).Str("file", file.Name).Msg("instrumented")
		}
	}
	log.Debug().Int("files", changed).Msg("gen finished")
	return nil
}

// emit writes one rewritten file where the options ask for it.
func emit(opts *genOptions, name string, src []byte, stdout io.Writer) error {
	switch {
	case opts.write:
		return os.WriteFile(name, src, 0o644)
	case opts.output != "":
		if err := os.MkdirAll(opts.output, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(opts.output, filepath.Base(name)), src, 0o644)
	default:
		if _, err := fmt.Fprintf(stdout, "// %s\n", name); err != nil {
			return err
		}
		_, err := stdout.Write(src)
		return err
	}
}
