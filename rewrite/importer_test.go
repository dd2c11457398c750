package rewrite

import (
	"fmt"
	"go/types"
	"sync"
	"testing"

	"golang.org/x/tools/go/packages"
)

// packages the test sources may import
var testImports = []string{RuntimePath, "errors", "fmt", "time"}

var (
	loadOnce   sync.Once
	loadedPkgs map[string]*types.Package
	loadErr    error
)

type importerFunc func(path string) (*types.Package, error)

func (f importerFunc) Import(path string) (*types.Package, error) {
	return f(path)
}

// testImporter resolves imports from one package graph, so the runtime and the
// test sources agree on the identity of shared types such as time.Duration.
func testImporter(t *testing.T) types.Importer {
	t.Helper()
	loadOnce.Do(func() {
		cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps | packages.NeedTypes}
		pkgs, err := packages.Load(cfg, testImports...)
		if err != nil {
			loadErr = err
			return
		}
		loadedPkgs = make(map[string]*types.Package)
		packages.Visit(pkgs, nil, func(p *packages.Package) {
			for _, e := range p.Errors {
				loadErr = e
			}
			if p.Types != nil {
				loadedPkgs[p.PkgPath] = p.Types
			}
		})
	})
	if loadErr != nil {
		t.Fatalf("loading packages: %v", loadErr)
	}
	return importerFunc(func(path string) (*types.Package, error) {
		if path == "unsafe" {
			return types.Unsafe, nil
		}
		if p, ok := loadedPkgs[path]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("package %q is not loaded for tests", path)
	})
}
