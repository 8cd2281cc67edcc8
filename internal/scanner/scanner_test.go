package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qaerrors "github.com/codeqa/codeqa/internal/errors"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func scanPaths(t *testing.T, opts *ScanOptions) []string {
	t.Helper()
	s, err := New()
	require.NoError(t, err)

	files, err := s.List(context.Background(), opts)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, filepath.ToSlash(f.Path))
	}
	return paths
}

func TestScan_DiscoversSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def foo():\n    pass\n")
	writeFile(t, root, "src/b.go", "package b\n")
	writeFile(t, root, "README.md", "# readme\n")

	paths := scanPaths(t, &ScanOptions{RootDir: root})

	assert.ElementsMatch(t, []string{"a.py", "src/b.go", "README.md"}, paths)
}

func TestScan_DetectsLanguageAndContentType(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "print('hi')\n")
	writeFile(t, root, "doc.md", "# doc\n")

	s, err := New()
	require.NoError(t, err)
	files, err := s.List(context.Background(), &ScanOptions{RootDir: root})
	require.NoError(t, err)

	byPath := map[string]*FileInfo{}
	for _, f := range files {
		byPath[filepath.ToSlash(f.Path)] = f
	}

	require.Contains(t, byPath, "a.py")
	assert.Equal(t, "python", byPath["a.py"].Language)
	assert.Equal(t, ContentTypeCode, byPath["a.py"].ContentType)
	assert.Equal(t, ContentTypeMarkdown, byPath["doc.md"].ContentType)
}

func TestScan_SkipsExcludedDirsAndSensitiveFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "node_modules/pkg/index.js", "x")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, "server.pem", "-----BEGIN-----")

	paths := scanPaths(t, &ScanOptions{RootDir: root})

	assert.Equal(t, []string{"main.go"}, paths)
}

func TestScan_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nout/\n")
	writeFile(t, root, "keep.go", "package keep\n")
	writeFile(t, root, "debug.log", "log line")
	writeFile(t, root, "out/gen.go", "package gen\n")

	paths := scanPaths(t, &ScanOptions{RootDir: root, RespectGitignore: true})

	assert.ElementsMatch(t, []string{"keep.go", ".gitignore"}, paths)
}

func TestScan_NestedGitignoreScopedToSubdir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "sub/.gitignore", "*.tmp\n")
	writeFile(t, root, "sub/skip.tmp", "x")
	writeFile(t, root, "keep.tmp", "x")

	paths := scanPaths(t, &ScanOptions{RootDir: root, RespectGitignore: true})

	assert.Contains(t, paths, "keep.tmp")
	assert.NotContains(t, paths, "sub/skip.tmp")
}

func TestScan_SkipsBinaryAndOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", "package ok\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0x01, 0x02}, 0o644))
	writeFile(t, root, "big.txt", string(make([]byte, 0))) // placeholder, rewritten below
	big := make([]byte, 128)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))

	paths := scanPaths(t, &ScanOptions{RootDir: root, MaxFileSize: 64})

	assert.Equal(t, []string{"ok.go"}, paths)
}

func TestScan_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "x")
	writeFile(t, root, "b.go", "x")

	paths := scanPaths(t, &ScanOptions{RootDir: root, IncludePatterns: []string{"*.py"}})

	assert.Equal(t, []string{"a.py"}, paths)
}

func TestScan_ContextCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, root, filepath.Join("d", string(rune('a'+i))+".go"), "package d\n")
	}

	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch, err := s.Scan(ctx, &ScanOptions{RootDir: root})
	require.NoError(t, err)
	for range ch {
	}
	// No hang and channel closes: cancellation is honored.
}

func TestScan_MissingRootFails(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	_, err = s.Scan(context.Background(), &ScanOptions{RootDir: "/nonexistent/path"})
	assert.Error(t, err)
}

func TestReadFile_ReturnsContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.py", "def foo():\n    return 1\n")

	content, err := ReadFile(root, "src/a.py")

	require.NoError(t, err)
	assert.Contains(t, content, "def foo()")
}

func TestReadFile_RejectsEscapingPaths(t *testing.T) {
	root := t.TempDir()

	_, err := ReadFile(root, "../outside.txt")
	assert.Equal(t, qaerrors.ErrCodeInvalidPath, qaerrors.GetCode(err))

	_, err = ReadFile(root, "/etc/passwd")
	assert.Equal(t, qaerrors.ErrCodeInvalidPath, qaerrors.GetCode(err))
}

func TestReadFile_MissingFile(t *testing.T) {
	root := t.TempDir()

	_, err := ReadFile(root, "nope.py")
	assert.Equal(t, qaerrors.ErrCodeFileNotFound, qaerrors.GetCode(err))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"main.go", "go"},
		{"app/views.py", "python"},
		{"web/app.tsx", "typescript"},
		{"Dockerfile", "dockerfile"},
		{"notes", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLanguage(tt.path))
		})
	}
}
