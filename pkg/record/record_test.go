package record

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	var echo bytes.Buffer
	r := New(&echo)
	r.Logf("Loading %s", "fw.hex")
	r.Log("a", "b")
	require.Equal(t, []string{"Loading fw.hex", "a", "b"}, r.Lines())
	require.Equal(t, "Loading fw.hex\na\nb\n", echo.String())
	r.Clear()
	require.Empty(t, r.Lines())
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Logs")
	s := &FileSink{Dir: dir}
	require.NoError(t, s.Save("202610181200-0000\r\n", []string{"one", "two"}, false))
	path := filepath.Join(dir, "202610181200-0000.log")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\n", string(b))

	require.NoError(t, s.Save("202610181200-0000", []string{"three"}, true))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\nthree\n", string(b))

	require.NoError(t, s.Save("202610181200-0000", []string{"four"}, false))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "four\n", string(b))

	require.Error(t, s.Save("../escape", nil, false))
	require.Error(t, s.Save("", nil, false))
}
