package sandbox

import (
	"path"
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/cleared-dev/parsergen/internal/stmt"
)

// stmtImportPath is the import path routines use for the statement model.
const stmtImportPath = "stmt"

// stmtSymbols exports the routine-facing part of package stmt.
var stmtSymbols = map[string]reflect.Value{
	"Document": reflect.ValueOf((*stmt.Document)(nil)),
	"Page":     reflect.ValueOf((*stmt.Page)(nil)),
	"Table":    reflect.ValueOf((*stmt.Table)(nil)),
	"Row":      reflect.ValueOf((*stmt.Row)(nil)),

	"NewTable":     reflect.ValueOf(stmt.NewTable),
	"SplitColumns": reflect.ValueOf(stmt.SplitColumns),
	"JoinCells":    reflect.ValueOf(stmt.JoinCells),
	"CleanAmount":  reflect.ValueOf(stmt.CleanAmount),
	"IsNull":       reflect.ValueOf(stmt.IsNull),
}

// symbolsFor returns the stdlib symbols of the allowed packages plus stmt.
func symbolsFor(allowed []string) interp.Exports {
	allow := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		allow[p] = true
	}
	out := make(interp.Exports, len(allowed)+1)
	for key, syms := range stdlib.Symbols {
		if allow[path.Dir(key)] {
			out[key] = syms
		}
	}
	out[stmtImportPath+"/stmt"] = stmtSymbols
	return out
}
