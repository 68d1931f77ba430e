package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_ByExtension(t *testing.T) {
	assert.Equal(t, KindZip, Dispatch(".cbz", nil))
	assert.Equal(t, KindZip, Dispatch(".zip", nil))
	assert.Equal(t, KindRar, Dispatch(".cbr", nil))
	assert.Equal(t, KindRar, Dispatch(".rar", nil))
	assert.Equal(t, KindEpub, Dispatch(".epub", nil))
	assert.Equal(t, KindPDF, Dispatch(".pdf", nil))
}

func TestDispatch_FallsBackToMagicSniff(t *testing.T) {
	assert.Equal(t, KindZip, Dispatch("", []byte("PK\x03\x04rest")))
	assert.Equal(t, KindRar, Dispatch("", []byte("Rar!\x1a\x07rest")))
	assert.Equal(t, KindPDF, Dispatch("", []byte("%PDF-1.4")))
}

func TestDispatch_Unknown(t *testing.T) {
	assert.Equal(t, ProcessorKind(""), Dispatch(".txt", []byte("plain text")))
}

func TestFor_BuildsKnownProcessors(t *testing.T) {
	p, err := For(KindZip)
	require.NoError(t, err)
	assert.IsType(t, &ZipProcessor{}, p)

	p, err = For(KindRar)
	require.NoError(t, err)
	assert.IsType(t, &RarProcessor{}, p)

	p, err = For(KindEpub)
	require.NoError(t, err)
	assert.IsType(t, &EpubProcessor{}, p)
}

func TestFor_PDFNotSupported(t *testing.T) {
	_, err := For(KindPDF)
	assert.Error(t, err)
}

func TestFor_UnknownKind(t *testing.T) {
	_, err := For(ProcessorKind("bogus"))
	assert.Error(t, err)
}
