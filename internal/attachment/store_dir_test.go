package attachment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ndaflow/pkg/domain"
	"ndaflow/pkg/platform/sentinel"
)

func TestDir(t *testing.T) {
	dir := t.TempDir()
	agreementID := id.NewAgreementID()
	agreementDir := filepath.Join(dir, agreementID.String())
	require.NoError(t, os.MkdirAll(agreementDir, 0o755))

	older := filepath.Join(agreementDir, "NDA-v1.docx")
	newer := filepath.Join(agreementDir, "NDA-v2.pdf")
	require.NoError(t, os.WriteFile(older, []byte("first"), 0o600))
	require.NoError(t, os.WriteFile(newer, []byte("second"), 0o600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))

	store, err := OpenDir(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	t.Run("latest picks the newest document", func(t *testing.T) {
		ref, err := store.Latest(ctx, agreementID)
		require.NoError(t, err)
		assert.Equal(t, "NDA-v2.pdf", ref.Filename)
		assert.Equal(t, "application/pdf", ref.ContentType)

		data, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("traversal keys are not found", func(t *testing.T) {
		for _, key := range []string{"../secret.txt", "/etc/passwd", agreementID.String() + "/../secret.txt"} {
			_, err := store.Get(ctx, Ref{Key: key})
			assert.ErrorIs(t, err, sentinel.ErrNotFound, key)
			ok, err := store.Exists(ctx, Ref{Key: key})
			assert.NoError(t, err)
			assert.False(t, ok, key)
		}
	})

	t.Run("agreement without documents", func(t *testing.T) {
		_, err := store.Latest(ctx, id.NewAgreementID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemory(t *testing.T) {
	store := NewInMemory()
	agreementID := id.NewAgreementID()
	ref := Ref{Key: "k1", Filename: "NDA.docx", ContentType: DefaultContentType}
	store.Put(agreementID, ref, []byte("doc"))

	ok, err := store.Exists(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, ok)

	latest, err := store.Latest(context.Background(), agreementID)
	require.NoError(t, err)
	assert.Equal(t, ref, latest)

	_, err = store.Get(context.Background(), Ref{Key: "missing"})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
