package sandbox

import (
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// EntryPoint is the function every candidate routine must define.
const EntryPoint = "Parse"

// EntrySignature documents the entry contract.
const EntrySignature = "func Parse(doc stmt.Document) (*stmt.Table, error)"

// DefaultAllowedImports are the packages a routine may import besides stmt.
var DefaultAllowedImports = []string{
	"bytes",
	"errors",
	"fmt",
	"math",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
	"unicode/utf8",
}

var packageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+`)

// CheckSource parses a candidate routine, enforces the import allowlist and
// the entry point shape, and returns the normalised source and its package
// name. Source without a package clause is treated as package main.
func CheckSource(source string, allowed []string) (string, string, *Failure) {
	if strings.TrimSpace(source) == "" {
		return "", "", loadFailure("empty source")
	}
	if !packageClause.MatchString(source) {
		source = "package main\n\n" + source
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "parser.go", source, parser.AllErrors)
	if err != nil {
		return "", "", loadFailure("syntax error: %v", err)
	}

	allow := make(map[string]bool, len(allowed)+1)
	for _, p := range allowed {
		allow[p] = true
	}
	allow[stmtImportPath] = true

	var forbidden []string
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return "", "", loadFailure("bad import %s", imp.Path.Value)
		}
		if !allow[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		names := make([]string, 0, len(allow))
		for p := range allow {
			names = append(names, p)
		}
		sort.Strings(names)
		return "", "", loadFailure("forbidden imports %s (allowed: %s)",
			strings.Join(forbidden, ", "), strings.Join(names, ", "))
	}

	if pos, ok := findGoStmt(file); ok {
		return "", "", loadFailure("goroutines are not allowed (line %d)", fset.Position(pos).Line)
	}

	if !hasEntryPoint(file) {
		return "", "", loadFailure("missing entry point %s", EntrySignature)
	}
	return source, file.Name.Name, nil
}

// findGoStmt reports the first go statement in file. Panics on routine
// goroutines cannot be recovered by the host.
func findGoStmt(file *ast.File) (token.Pos, bool) {
	var pos token.Pos
	ast.Inspect(file, func(n ast.Node) bool {
		if pos.IsValid() {
			return false
		}
		if g, ok := n.(*ast.GoStmt); ok {
			pos = g.Pos()
			return false
		}
		return true
	})
	return pos, pos.IsValid()
}

func hasEntryPoint(file *ast.File) bool {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Name.Name != EntryPoint {
			continue
		}
		return fieldCount(fn.Type.Params) == 1 && fieldCount(fn.Type.Results) == 2
	}
	return false
}

func fieldCount(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			n++
		} else {
			n += len(f.Names)
		}
	}
	return n
}
