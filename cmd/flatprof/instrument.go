package main

import (
	"fmt"
	"go/importer"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mrproliu/flatprof/rewrite"
)

// sourceFile is a compile argument naming a Go file.
type sourceFile struct {
	argsIndex int
	path      string
	src       []byte
}

// instrument rewrites the Go files of one compile command and returns the new arguments.
// Packages that can't be instrumented are compiled unchanged.
func instrument(cfg Config, args []string, opt *compileOptions) ([]string, error) {
	if opt.Package == rewrite.RuntimePath {
		return args, nil
	}

	var files []*sourceFile
	marked := false
	for inx, path := range args {
		if !strings.HasSuffix(path, ".go") {
			continue
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		marked = marked || rewrite.HasDirective(src)
		files = append(files, &sourceFile{argsIndex: inx, path: path, src: src})
	}
	if !marked {
		return args, nil
	}

	logger := log.With().Str("package", opt.Package).Logger()
	if opt.ImportCfg == "" {
		logger.Warn().Msg("compile command has no importcfg, package not instrumented")
		return args, nil
	}
	importCfg, err := readImportConfig(opt.ImportCfg)
	if err != nil {
		return nil, err
	}
	if !importCfg.has(rewrite.RuntimePath) {
		logger.Warn().Msgf("package does not import %s, add a blank import to instrument it", rewrite.RuntimePath)
		return args, nil
	}

	names := make([]string, len(files))
	srcs := make([][]byte, len(files))
	for i, f := range files {
		names[i], srcs[i] = f.path, f.src
	}
	pkg, err := rewrite.Check(opt.Package, names, srcs, importer.ForCompiler(token.NewFileSet(), "gc", importCfg.lookup))
	if err != nil {
		// the compiler reports the same error with better context
		logger.Warn().Err(err).Msg("package not instrumented")
		return args, nil
	}

	details, closeDetails, err := openDetails(cfg.Details)
	if err != nil {
		return nil, err
	}
	defer closeDetails()

	buildDir := filepath.Dir(opt.Output)
	for i, file := range pkg.Files {
		res, err := rewrite.Transform(file, rewrite.Options{Defaults: cfg.Defaults(), Details: details, LineDirectives: true})
		if err != nil {
			return nil, err
		}
		if !res.Changed() {
			continue
		}
		dest := filepath.Join(buildDir, fmt.Sprintf("flatprof_%d_%s", i, filepath.Base(file.Name)))
		if err := writeInstrumented(dest, file.Name, res); err != nil {
			return nil, err
		}
		args[files[i].argsIndex] = dest
		logger.Info().Strs("funcs", res.Funcs).Str("file", file.Name).Msg("instrumented")
	}
	return args, nil
}

// writeInstrumented writes a rewritten file whose positions point back to the original.
func writeInstrumented(dest, original string, res *rewrite.Result) error {
	output, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer output.Close()
	if _, err := fmt.Fprintf(output, "//line %s:1\n", original); err != nil {
		return err
	}
	if err := rewrite.WriteFile(res.File, output); err != nil {
		return err
	}
	return output.Close()
}

// openDetails returns the details sink configured by path, or a nil sink.
func openDetails(path string) (func(rewrite.Details), func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := rewrite.NewDetailsWriter(f)
	sink := func(d rewrite.Details) {
		if err := w.Write(d); err != nil {
			log.Error().Err(err).Str("func", d.Func).Msg("writing details")
		}
	}
	return sink, func() {
		w.Close()
		f.Close()
	}, nil
}
