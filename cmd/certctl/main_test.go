package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/pdf/pdftest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, "catalog", "CNPJ", "--upstream", "http://upstream.test", "--file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "http://upstream.test/tjdf/criminal/cnpj")
	assert.NotContains(t, out, "RECEITA")
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	path := pdftest.WriteFile(t, dir, "cert.pdf", "CERTIDAO JUDICIAL", "NADA CONSTA")

	out, err := execute(t, "extract", path, "--family", "nada_consta")
	require.NoError(t, err)
	assert.Contains(t, out, "CERTIDAO JUDICIAL")
	assert.Contains(t, out, "pendency: false")
}

func TestMergeCommand(t *testing.T) {
	dir := t.TempDir()
	pdftest.WriteFile(t, dir, "a.pdf", "um")
	pdftest.WriteFile(t, dir, "b.pdf", "dois")

	out, err := execute(t, "merge", "--dir", dir, "a.pdf", "b.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "dossie.pdf")

	_, err = execute(t, "merge", "--dir", dir, "missing.pdf")
	assert.Error(t, err)
}

func TestStatusRejectsBadID(t *testing.T) {
	_, err := execute(t, "status", "abc")
	assert.ErrorContains(t, err, "invalid case id")
}
