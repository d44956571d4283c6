package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSource_Valid(t *testing.T) {
	src, pkg, fail := CheckSource(lineRoutine, DefaultAllowedImports)
	require.Nil(t, fail)
	assert.Equal(t, "main", pkg)
	assert.Equal(t, lineRoutine, src)
}

func TestCheckSource_AddsPackageClause(t *testing.T) {
	body := `import "stmt"

func Parse(doc stmt.Document) (*stmt.Table, error) { return stmt.NewTable(), nil }
`
	src, pkg, fail := CheckSource(body, DefaultAllowedImports)
	require.Nil(t, fail)
	assert.Equal(t, "main", pkg)
	assert.Contains(t, src, "package main")
}

func TestCheckSource_KeepsOtherPackageName(t *testing.T) {
	body := `package hdfc

import "stmt"

func Parse(doc stmt.Document) (*stmt.Table, error) { return stmt.NewTable(), nil }
`
	_, pkg, fail := CheckSource(body, DefaultAllowedImports)
	require.Nil(t, fail)
	assert.Equal(t, "hdfc", pkg)
}

func TestCheckSource_ForbiddenImports(t *testing.T) {
	body := `package main

import (
	"os"
	"net/http"
	"strings"
	"stmt"
)

func Parse(doc stmt.Document) (*stmt.Table, error) { return nil, nil }
`
	_, _, fail := CheckSource(body, DefaultAllowedImports)
	require.NotNil(t, fail)
	assert.Equal(t, FailureLoad, fail.Kind)
	assert.Contains(t, fail.Message, "forbidden imports os, net/http")
	assert.NotContains(t, fail.Message, "forbidden imports os, net/http, strings")
}

func TestCheckSource_SyntaxError(t *testing.T) {
	_, _, fail := CheckSource("package main\nfunc Parse(", DefaultAllowedImports)
	require.NotNil(t, fail)
	assert.Equal(t, FailureLoad, fail.Kind)
	assert.Contains(t, fail.Message, "syntax error")
}

func TestCheckSource_EntryPoint(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing", "package main\nfunc parse() {}\n"},
		{"method", "package main\ntype p struct{}\nfunc (p) Parse(d int) (int, error) { return 0, nil }\n"},
		{"wrong arity", "package main\nfunc Parse() error { return nil }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, fail := CheckSource(tt.src, DefaultAllowedImports)
			require.NotNil(t, fail)
			assert.Contains(t, fail.Message, "missing entry point")
		})
	}
}

func TestCheckSource_Empty(t *testing.T) {
	_, _, fail := CheckSource("  \n", nil)
	require.NotNil(t, fail)
	assert.Equal(t, "load: empty source", fail.Error())
}

func TestCheckSource_RejectsGoroutines(t *testing.T) {
	body := `package main

import "stmt"

func Parse(doc stmt.Document) (*stmt.Table, error) {
	go func() { panic("boom") }()
	return stmt.NewTable(), nil
}
`
	_, _, fail := CheckSource(body, DefaultAllowedImports)
	require.NotNil(t, fail)
	assert.Equal(t, FailureLoad, fail.Kind)
	assert.Equal(t, "goroutines are not allowed (line 6)", fail.Message)
}
