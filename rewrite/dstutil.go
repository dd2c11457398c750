package rewrite

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"io"
	"strconv"

	"github.com/dave/dst"
	"github.com/dave/dst/decorator"
)

// WriteFile prints a decorated file formatted like gofmt does.
func WriteFile(file *dst.File, w io.Writer) error {
	return decorator.Fprint(w, file)
}

func goStringToStmts(goString string) ([]dst.Stmt, error) {
	data := fmt.Sprintf(`
package main
func main() {
%s
}`, goString)
	parsed, err := decorator.ParseFile(nil, "builder.go", data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing go failure: %v\n%s", err, goString)
	}
	return parsed.Decls[0].(*dst.FuncDecl).Body.List, nil
}

func goStringToDecls(goString string) ([]dst.Decl, error) {
	data := fmt.Sprintf(`
package main
%s
`, goString)
	parsed, err := decorator.ParseFile(nil, "builder.go", data, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing go failure: %v\n%s", err, goString)
	}
	return parsed.Decls, nil
}

func goStringToTypeExpr(goString string) (dst.Expr, error) {
	decls, err := goStringToDecls("var _ " + goString)
	if err != nil {
		return nil, err
	}
	return decls[0].(*dst.GenDecl).Specs[0].(*dst.ValueSpec).Type, nil
}

// addImport adds a named import to the file unless it is already there.
func addImport(file *dst.File, name, path string) {
	quoted := strconv.Quote(path)
	for _, decl := range file.Decls {
		gen, ok := decl.(*dst.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		for _, s := range gen.Specs {
			if is, ok := s.(*dst.ImportSpec); ok && is.Name != nil && is.Name.Name == name && is.Path.Value == quoted {
				return
			}
		}
	}
	spec := &dst.ImportSpec{
		Name: dst.NewIdent(name),
		Path: &dst.BasicLit{Kind: token.STRING, Value: quoted},
	}
	file.Imports = append(file.Imports, spec)
	for _, decl := range file.Decls {
		gen, ok := decl.(*dst.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			continue
		}
		gen.Specs = append(gen.Specs, spec)
		if len(gen.Specs) > 1 {
			gen.Lparen = true
		}
		return
	}
	gen := &dst.GenDecl{Tok: token.IMPORT, Specs: []dst.Spec{spec}}
	file.Decls = append([]dst.Decl{gen}, file.Decls...)
}

// importQualifier names packages the way the file imports them. ok turns
// false once a type from a package the file cannot refer to is printed.
type importQualifier struct {
	pkg   *types.Package
	names map[*types.Package]string
	ok    bool
}

func newImportQualifier(file *ast.File, pkg *types.Package, info *types.Info) *importQualifier {
	q := &importQualifier{pkg: pkg, names: make(map[*types.Package]string), ok: true}
	for _, spec := range file.Imports {
		var obj types.Object
		if spec.Name != nil {
			obj = info.Defs[spec.Name]
		}
		if obj == nil {
			obj = info.Implicits[spec]
		}
		pkgName, isPkg := obj.(*types.PkgName)
		if !isPkg {
			continue
		}
		name := pkgName.Name()
		if spec.Name != nil {
			name = spec.Name.Name
		}
		switch name {
		case "_":
			continue
		case ".":
			name = ""
		}
		q.names[pkgName.Imported()] = name
	}
	return q
}

func (q *importQualifier) qualify(p *types.Package) string {
	if p == q.pkg {
		return ""
	}
	if name, ok := q.names[p]; ok {
		return name
	}
	q.ok = false
	return p.Name()
}

// typeString prints t for use in the file, or reports false.
func (q *importQualifier) typeString(t types.Type) (string, bool) {
	q.ok = true
	s := types.TypeString(t, q.qualify)
	return s, q.ok
}
