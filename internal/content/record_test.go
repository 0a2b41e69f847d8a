package content

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSavedClosesAfterMarkSaved(t *testing.T) {
	rec := &Record{Key: "k"}
	rec.NewSaveSignal()

	select {
	case <-rec.Saved():
		t.Fatal("saved channel closed before MarkSaved")
	default:
	}

	rec.MarkSaved()

	select {
	case <-rec.Saved():
	default:
		t.Fatal("saved channel still open after MarkSaved")
	}
}

func TestMarkSavedIsIdempotent(t *testing.T) {
	rec := &Record{Key: "k"}
	rec.NewSaveSignal()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.MarkSaved()
		}()
	}
	wg.Wait()
}

func TestSavedWithoutSignalIsAlreadyClosed(t *testing.T) {
	rec := &Record{Key: "k"}
	select {
	case <-rec.Saved():
	default:
		t.Fatal("expected an already-closed channel when NewSaveSignal was never called")
	}
}

func TestEncodingHeaderJoinsWithComma(t *testing.T) {
	rec := &Record{Encoding: []string{"gzip", "identity"}}
	require.Equal(t, "gzip,identity", rec.EncodingHeader())

	require.Equal(t, "", (&Record{}).EncodingHeader())
}

func TestIsEmpty(t *testing.T) {
	require.True(t, (*Record)(nil).IsEmpty())
	require.True(t, Empty().IsEmpty())
	require.True(t, (&Record{Key: "k"}).IsEmpty())
	require.True(t, (&Record{Content: []byte("x")}).IsEmpty())
	require.False(t, (&Record{Key: "k", Content: []byte("x")}).IsEmpty())
}
