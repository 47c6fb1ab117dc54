package spooldir

import (
	"bytes"
	_c "context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cirrus/cirrus"
	"cirrus/lib/context"
	"cirrus/lib/properties"
	"cirrus/pkg/datasource"
	"cirrus/pkg/encoding"
	"cirrus/pkg/payload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePayloads(t *testing.T, file string, b *payload.UuidBuilder, seqs ...int) {
	buf := &bytes.Buffer{}
	for _, seq := range seqs {
		p, err := payload.New(nil, nil, b.Get(seq), encoding.None)
		require.NoError(t, err)
		v, err := p.Marshal()
		require.NoError(t, err)
		buf.Write(v)
		buf.WriteString("\n")
	}
	buf.WriteString("{not a payload}\n")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o644))
}

func TestCollect(t *testing.T) {
	scan, backup := t.TempDir(), t.TempDir()
	b := payload.NewUuidBuilder("q", 0, 3)
	writePayloads(t, filepath.Join(scan, "0001.json"), b, 1, 2)
	require.NoError(t, os.WriteFile(filepath.Join(scan, "ignored.txt"), []byte("x"), 0o644))

	config := fmt.Sprintf("source:\n  files:\n    scan: %s\n    backup: %s\n", scan, backup)
	ps, err := properties.Read("yaml", strings.NewReader(config))
	require.NoError(t, err)
	ctx := context.New(_c.Background(), ps).Named("source.files")
	s := New().(*source)
	_, err = properties.InitAndRender(ctx.Properties(), s.PropertiesDef())
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx))

	var (
		mu       sync.Mutex
		received = map[int]*payload.Payload{}
	)
	done := make(chan error)
	go func() {
		done <- s.Collect(func(p *payload.Payload, _ cirrus.ACKHandler) {
			mu.Lock()
			defer mu.Unlock()
			received[p.UUID.SeqNum] = p
		})
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 5*time.Second, 20*time.Millisecond)

	writePayloads(t, filepath.Join(scan, "0002.json"), b, 3)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		entries, _ := os.ReadDir(backup)
		return len(entries) == 2
	}, 5*time.Second, 20*time.Millisecond)
	_, err = os.Stat(filepath.Join(scan, "ignored.txt"))
	assert.NoError(t, err)

	ctx.Cancel()
	require.NoError(t, <-done)
	require.NoError(t, s.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, datasource.Payload, received[1].DataSource.Kind)
	assert.Equal(t, filepath.Join(scan, "0001.json"), received[1].DataSource.Config["file"])
	assert.Equal(t, 2, datasource.GetAsOr(received[2].DataSource, "line", 0))
}
