package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"

	"golang.org/x/tools/go/packages"
)

// Package is a type-checked package ready to be transformed.
type Package struct {
	Path  string
	Files []*File
}

// HasDirective reports whether the source might contain a profiling directive.
func HasDirective(src []byte) bool {
	return bytes.Contains(src, []byte(DirectivePrefix))
}

func newInfo() *types.Info {
	return &types.Info{
		Types:     make(map[ast.Expr]types.TypeAndValue),
		Instances: make(map[*ast.Ident]types.Instance),
		Defs:      make(map[*ast.Ident]types.Object),
		Uses:      make(map[*ast.Ident]types.Object),
		Implicits: make(map[ast.Node]types.Object),
	}
}

// Check parses and type-checks the files of one package.
func Check(pkgPath string, names []string, srcs [][]byte, importer types.Importer) (*Package, error) {
	fset := token.NewFileSet()
	astFiles := make([]*ast.File, 0, len(names))
	for i, name := range names {
		f, err := parser.ParseFile(fset, name, srcs[i], parser.ParseComments)
		if err != nil {
			return nil, err
		}
		astFiles = append(astFiles, f)
	}

	info := newInfo()
	conf := types.Config{Importer: importer}
	pkg, err := conf.Check(pkgPath, fset, astFiles, info)
	if err != nil {
		return nil, fmt.Errorf("type-checking %s: %w", pkgPath, err)
	}

	result := &Package{Path: pkgPath}
	for i, f := range astFiles {
		result.Files = append(result.Files, &File{
			Name: names[i],
			Fset: fset,
			AST:  f,
			Src:  srcs[i],
			Pkg:  pkg,
			Info: info,
		})
	}
	return result, nil
}

const loadMode = packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
	packages.NeedImports | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo

// Load loads packages matching the patterns relative to dir.
func Load(dir string, patterns ...string) ([]*Package, error) {
	cfg := &packages.Config{
		Mode: loadMode,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}

	var errs []error
	result := make([]*Package, 0, len(pkgs))
	for _, p := range pkgs {
		for _, e := range p.Errors {
			errs = append(errs, e)
		}
		if len(p.Errors) > 0 {
			continue
		}
		pkg := &Package{Path: p.PkgPath}
		for _, f := range p.Syntax {
			name := p.Fset.Position(f.Pos()).Filename
			src, err := os.ReadFile(name)
			if err != nil {
				return nil, err
			}
			pkg.Files = append(pkg.Files, &File{
				Name: name,
				Fset: p.Fset,
				AST:  f,
				Src:  src,
				Pkg:  p.Types,
				Info: p.TypesInfo,
			})
		}
		result = append(result, pkg)
	}
	return result, errors.Join(errs...)
}
