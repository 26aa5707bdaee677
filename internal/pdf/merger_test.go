package pdfutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/certdossier/internal/docstore"
	"github.com/dharsanguruparan/certdossier/internal/pdf/pdftest"
)

func newTestMerger(t *testing.T) (*Merger, *docstore.Dir) {
	t.Helper()
	dir, err := docstore.New(t.TempDir(), "http://localhost/files")
	require.NoError(t, err)
	return NewMerger(dir, nil), dir
}

func TestMergeNothing(t *testing.T) {
	m, dir := newTestMerger(t)

	name, err := m.Merge(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, name)

	name, err = m.Merge(context.Background(), []string{"missing-a.pdf", "missing-b.pdf"})
	require.NoError(t, err)
	assert.Empty(t, name)

	entries, err := os.ReadDir(dir.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMergeConcatenatesInOrder(t *testing.T) {
	m, dir := newTestMerger(t)
	pdftest.WriteFile(t, dir.Root(), "a.pdf", "primeiro")
	pdftest.WriteFile(t, dir.Root(), "b.pdf", "segundo", "terceiro")

	name, err := m.Merge(context.Background(), []string{"a.pdf", "missing.pdf", "b.pdf"})
	require.NoError(t, err)
	require.NotEmpty(t, name)
	assert.NotEqual(t, "a.pdf", name)
	assert.NotEqual(t, "b.pdf", name)
	assert.Contains(t, name, DossierSuffix)

	pages, err := PageCount(filepath.Join(dir.Root(), name))
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
}

func TestMergeSingleInputCopies(t *testing.T) {
	m, dir := newTestMerger(t)
	pdftest.WriteFile(t, dir.Root(), "only.pdf", "unico")

	name, err := m.Merge(context.Background(), []string{"only.pdf"})
	require.NoError(t, err)
	require.NotEqual(t, "only.pdf", name)

	pages, err := PageCount(filepath.Join(dir.Root(), name))
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestMergeSkipsInvalidPDF(t *testing.T) {
	m, dir := newTestMerger(t)
	require.NoError(t, dir.Write("broken.pdf", []byte("not a pdf")))

	name, err := m.Merge(context.Background(), []string{"broken.pdf"})
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMergeWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	m, dir := newTestMerger(t)
	pdftest.WriteFile(t, dir.Root(), "a.pdf", "um")
	pdftest.WriteFile(t, dir.Root(), "b.pdf", "dois")
	require.NoError(t, os.Chmod(dir.Root(), 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir.Root(), 0o755) })

	_, err := m.Merge(context.Background(), []string{"a.pdf", "b.pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMergeWrite)
}
