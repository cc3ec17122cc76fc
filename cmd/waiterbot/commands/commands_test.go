package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/waiterbot-go/internal/config"
	"github.com/54b3r/waiterbot-go/internal/logging"
	"github.com/54b3r/waiterbot-go/internal/menuindex"
	"github.com/54b3r/waiterbot-go/internal/provider"
)

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "ingest", "ask", "backfill", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "waiterbot "))
}

func TestBuildStore_SQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "waiterbot.db")
	st, err := buildStore(context.Background(), config.StoreRuntime{Backend: "sqlite", SQLitePath: path}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.NoError(t, st.Ping(context.Background()))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestMenuMirror(t *testing.T) {
	t.Parallel()

	st, err := buildStore(context.Background(), config.StoreRuntime{Backend: "sqlite", SQLitePath: ":memory:"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.NotNil(t, menuMirror(&config.Runtime{Store: config.StoreRuntime{Backend: "sqlite"}}, st))
	assert.Nil(t, menuMirror(&config.Runtime{Store: config.StoreRuntime{Backend: "firestore"}}, st))
}

func TestBuildUploader_DirFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	up, closeFn, err := buildUploader(context.Background(), config.BackfillRuntime{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = closeFn() }()

	loc, err := up.Upload(context.Background(), "backfill/embeddings-20250301.json", strings.NewReader("{}\n"))
	require.NoError(t, err)
	assert.FileExists(t, loc)
	assert.True(t, strings.HasPrefix(loc, dir))
}

func TestBuildPingers(t *testing.T) {
	t.Parallel()

	st, err := buildStore(context.Background(), config.StoreRuntime{Backend: "sqlite", SQLitePath: ":memory:"}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	idx, err := menuindex.NewMemory(constEmbedder{})
	require.NoError(t, err)

	deps := &runtimeDeps{
		rt:    &config.Runtime{Store: config.StoreRuntime{Backend: "sqlite"}},
		store: st,
		index: idx,
	}

	pingers := buildPingers(deps, &provider.Config{Backend: provider.BackendArk})
	require.Len(t, pingers, 1)
	assert.Equal(t, "store/sqlite", pingers[0].Name())

	pingers = buildPingers(deps, &provider.Config{Backend: provider.BackendOllama})
	require.Len(t, pingers, 2)
	assert.Equal(t, "ollama", pingers[1].Name())
}
