package ktrust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/kernelguard/kernel/kconfig"
	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/klifecycle"
	"github.com/compozy/kernelguard/kernel/ktable"
	"github.com/compozy/kernelguard/pkg/logger"
)

type fakeSessionBody struct {
	key []byte
}

func (f *fakeSessionBody) ExtractSessionKey() ([]byte, error) { return f.key, nil }

func newBootedKernel(t *testing.T) *kdispatch.Kernel {
	t.Helper()
	k := kdispatch.New(kconfig.Default(), logger.NewLogger(logger.TestConfig()))
	require.NoError(t, klifecycle.Boot(context.Background(), k))
	return k
}

func newReadyContext(t *testing.T, k *kdispatch.Kernel, body any) ktable.Handle {
	t.Helper()
	h, err := klifecycle.CreateObject(
		k, ktable.TypeContext, ktable.SubtypeContextConventional,
		klifecycle.CreationFlags{}, ktable.DefaultUserHandle, ktable.ActionPerms{}, nil, body,
	)
	require.NoError(t, err)
	require.NoError(t, klifecycle.CompleteInit(context.Background(), k, h))
	return h
}

func TestExtractKey(t *testing.T) {
	t.Run("Should return the raw session key from a supporting context body", func(t *testing.T) {
		k := newBootedKernel(t)
		h := newReadyContext(t, k, &fakeSessionBody{key: []byte("sekrit")})

		got, err := ExtractKey(context.Background(), k, h)

		require.NoError(t, err)
		assert.Equal(t, []byte("sekrit"), got)
	})

	t.Run("Should reject a context body that doesn't support extraction", func(t *testing.T) {
		k := newBootedKernel(t)
		h := newReadyContext(t, k, "not-an-extractor")

		_, err := ExtractKey(context.Background(), k, h)

		assert.Error(t, err)
	})
}

type fakePKCBody struct {
	exported []byte
	imported []byte
}

func (f *fakePKCBody) ExportPrivateKeyData() ([]byte, error) { return f.exported, nil }
func (f *fakePKCBody) ImportPrivateKeyData(data []byte) error {
	f.imported = data
	return nil
}

func TestExportImportPrivateKeyData(t *testing.T) {
	t.Run("Should round-trip private key data through export and import", func(t *testing.T) {
		k := newBootedKernel(t)
		body := &fakePKCBody{exported: []byte("priv-components")}
		h := newReadyContext(t, k, body)

		data, err := ExportPrivateKeyData(context.Background(), k, h)
		require.NoError(t, err)
		assert.Equal(t, []byte("priv-components"), data)

		require.NoError(t, ImportPrivateKeyData(context.Background(), k, h, data))
		assert.Equal(t, data, body.imported)
	})
}

func TestCloneContext(t *testing.T) {
	t.Run("Should allocate an aliased destination context and complete its init", func(t *testing.T) {
		k := newBootedKernel(t)
		src := newReadyContext(t, k, &fakeSessionBody{key: []byte("clone-me")})

		dest, err := CloneContext(context.Background(), k, src)

		require.NoError(t, err)
		assert.NotEqual(t, src, dest)

		destObj, err := k.Table.Lookup(dest)
		require.NoError(t, err)
		assert.True(t, destObj.HasFlag(ktable.FlagAliased))
		assert.True(t, destObj.HasFlag(ktable.FlagHighState))
	})
}
