package minixfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipeReadWriteRoundTrip(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)

	n, err := p.WritePipe([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	dst := make([]byte, 5)
	n, err = p.ReadPipe(dst)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(dst))
}

func TestPipeReadReturnsEOFAfterWritersClose(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)

	p.pipe.CloseWriteEnd()

	dst := make([]byte, 8)
	n, err := p.ReadPipe(dst)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPipeWriteFailsWhenNoReaders(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)

	p.pipe.CloseReadEnd()

	_, err = p.WritePipe([]byte("x"))
	require.ErrorIs(t, err, ErrBadF)
}

func TestPipeWriteBlocksUntilReaderDrains(t *testing.T) {
	fx := newTestFixture(t, 64)
	defer fx.fsys.Inodes.Iput(fx.root)

	p, err := fx.fsys.MakePipe()
	require.NoError(t, err)

	big := make([]byte, PipePageSize-1)
	for i := range big {
		big[i] = byte(i)
	}
	n, err := p.WritePipe(big)
	require.NoError(t, err)
	require.Equal(t, len(big), n)

	done := make(chan struct{})
	go func() {
		extra := []byte{0xAA, 0xBB}
		p.WritePipe(extra)
		close(done)
	}()

	dst := make([]byte, 4)
	read, err := p.ReadPipe(dst)
	require.NoError(t, err)
	require.NotZero(t, read)

	<-done
}
