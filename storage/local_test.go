package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLocalSourceDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "并网验收需要提交申请表。")
	writeFile(t, dir, "a.meta.json", `{
		"title": "验收办法",
		"source_url": "https://drc.gd.gov.cn/doc/1",
		"jurisdiction": "gd",
		"asset": "solar",
		"document_class": "regulation"
	}`)
	// No sidecar: skipped, not fatal.
	writeFile(t, dir, "orphan.txt", "没有元数据的文件")
	// Malformed sidecar: skipped too.
	writeFile(t, dir, "b.txt", "text")
	writeFile(t, dir, "b.meta.json", "{not json")

	src, err := NewLocalSource(dir)
	require.NoError(t, err)

	docs, err := src.Discover(t.Context())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "gd", docs[0].Jurisdiction)
	assert.Equal(t, "solar", docs[0].Asset)
	assert.Equal(t, "并网验收需要提交申请表。", docs[0].RawText)
}

func TestLocalSourceCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "documents")

	src, err := NewLocalSource(dir)
	require.NoError(t, err)

	docs, err := src.Discover(t.Context())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLocalSourceRequiresScopeFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "text")
	writeFile(t, dir, "a.meta.json", `{"title": "t", "source_url": "https://x.gov.cn/1"}`)

	src, err := NewLocalSource(dir)
	require.NoError(t, err)
	docs, err := src.Discover(t.Context())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
