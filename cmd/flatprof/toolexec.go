package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type compileOptions struct {
	Package   string
	Output    string
	ImportCfg string
}

func (c *compileOptions) String() string {
	return fmt.Sprintf("-p: %s, -o: %s, -importcfg: %s", c.Package, c.Output, c.ImportCfg)
}

func newToolexecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toolexec <tool> [args...]",
		Short: "Wrap the go toolchain, use as go build -toolexec=\"flatprof toolexec\"",
		Args:  cobra.MinimumNArgs(1),
		// the wrapped tool's own flags must reach it untouched
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup("")
			if err != nil {
				return err
			}
			return toolexec(cfg, args)
		},
	}
}

// toolexec rewrites the compile command of packages carrying directives and runs the tool.
func toolexec(cfg Config, args []string) error {
	option := parseCompileOption(args)
	if option != nil && option.Package != "" && option.Output != "" {
		newArgs, err := instrument(cfg, args, option)
		if err != nil {
			return err
		}
		args = newArgs
	}
	return executeCommand(args)
}

// parseCompileOption reads the options of a compile command, it returns nil for any other tool.
func parseCompileOption(args []string) *compileOptions {
	if len(args) == 0 {
		return nil
	}

	cmd := filepath.Base(args[0])
	if ext := filepath.Ext(cmd); ext != "" {
		cmd = strings.TrimSuffix(cmd, ext)
	}
	if cmd != "compile" {
		return nil
	}

	opt := &compileOptions{}
	i := 1
	for i < len(args)-1 {
		if args[i] == "" || args[i][0] != '-' {
			i++
			continue
		}

		kv := strings.SplitN(args[i], "=", 2)
		var valRef *string
		switch kv[0] {
		case "-p":
			valRef = &opt.Package
		case "-o":
			valRef = &opt.Output
		case "-importcfg":
			valRef = &opt.ImportCfg
		default:
			if len(kv) == 2 {
				i++
			} else if args[i+1] == "" || (len(args[i+1]) > 1 && args[i+1][0] != '-') {
				i += 2
			} else {
				i++
			}
			continue
		}

		if len(kv) == 2 {
			*valRef = kv[1]
			i++
		} else {
			*valRef = args[i+1]
			i += 2
		}
	}

	return opt
}

// importConfig is the package to export data mapping of a compile command.
type importConfig struct {
	packageFile map[string]string
	importMap   map[string]string
}

func readImportConfig(path string) (*importConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseImportConfig(f)
}

// parseImportConfig parses the packagefile and importmap lines of an importcfg.
func parseImportConfig(r io.Reader) (*importConfig, error) {
	cfg := &importConfig{
		packageFile: make(map[string]string),
		importMap:   make(map[string]string),
	}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		verb, args, _ := strings.Cut(line, " ")
		key, value, ok := strings.Cut(args, "=")
		switch verb {
		case "packagefile":
			if !ok || key == "" || value == "" {
				return nil, fmt.Errorf("importcfg line %d: invalid packagefile %q", lineNum, args)
			}
			cfg.packageFile[key] = value
		case "importmap":
			if !ok || key == "" || value == "" {
				return nil, fmt.Errorf("importcfg line %d: invalid importmap %q", lineNum, args)
			}
			cfg.importMap[key] = value
		}
	}
	return cfg, scanner.Err()
}

func (c *importConfig) resolve(path string) string {
	if mapped, ok := c.importMap[path]; ok {
		return mapped
	}
	return path
}

func (c *importConfig) has(path string) bool {
	_, ok := c.packageFile[c.resolve(path)]
	return ok
}

// lookup opens the export data of an import path.
func (c *importConfig) lookup(path string) (io.ReadCloser, error) {
	file, ok := c.packageFile[c.resolve(path)]
	if !ok {
		return nil, fmt.Errorf("can't find import: %q", path)
	}
	return os.Open(file)
}

// executeCommand runs the tool with the possibly rewritten arguments.
func executeCommand(args []string) error {
	log.Debug().Strs("args", args).Msg("executing tool")
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
