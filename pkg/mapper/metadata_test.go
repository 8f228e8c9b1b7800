package mapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfxbuf/bufmap/pkg/metadata"
)

func TestGetFixedMetadata(t *testing.T) {
	m, h := newLockedTestMapper(t)
	info := testInfo()

	v, err := m.Get(h, metadata.Width)
	require.NoError(t, err)
	w, err := metadata.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, info.Width, w)

	v, err = m.Get(h, metadata.Usage)
	require.NoError(t, err)
	u, err := metadata.DecodeU64(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(info.Usage), u)

	v, err = m.Get(h, metadata.Stride)
	require.NoError(t, err)
	stride, err := metadata.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, info.Width, stride)

	v, err = m.Get(h, metadata.BufferID)
	require.NoError(t, err)
	id, err := metadata.DecodeString(v)
	require.NoError(t, err)
	assert.Equal(t, h.BufferID().String(), id)
}

func TestGetDynamicMetadataDefault(t *testing.T) {
	m, h := newLockedTestMapper(t)

	v, err := m.Get(h, metadata.Dataspace)
	require.NoError(t, err)
	ds, err := metadata.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, uint32(metadata.DataspaceUnknown), ds)
}

func TestSetFixedMetadataFailsRegardlessOfHandle(t *testing.T) {
	m, h := newLockedTestMapper(t)

	// Valid handle.
	assert.ErrorIs(t, m.Set(h, metadata.Width, metadata.EncodeU32(1)), ErrBadValue)
	// Nil handle: settability of the token is checked first.
	assert.ErrorIs(t, m.Set(nil, metadata.Width, metadata.EncodeU32(1)), ErrBadValue)
	// Freed handle, same outcome.
	freed, err := m.ImportBuffer(context.Background(), testRawHandle(testInfo()))
	require.NoError(t, err)
	require.NoError(t, m.FreeBuffer(freed))
	assert.ErrorIs(t, m.Set(freed, metadata.Width, metadata.EncodeU32(1)), ErrBadValue)
}

func TestUnknownMetadataType(t *testing.T) {
	m, h := newLockedTestMapper(t)
	unknown := metadata.Type{Namespace: "vendor.nobody", Code: 77}

	_, err := m.Get(h, unknown)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, m.Set(h, unknown, []byte{1}), ErrUnsupported)
	_, err = m.GetFromDescriptorInfo(testInfo(), unknown)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSetOnFreedHandle(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	h, err := m.ImportBuffer(context.Background(), testRawHandle(testInfo()))
	require.NoError(t, err)
	require.NoError(t, m.FreeBuffer(h))

	assert.ErrorIs(t, m.Set(h, metadata.Dataspace, metadata.EncodeU32(metadata.DataspaceSRGB)), ErrBadBuffer)
}

func TestSetRejectsInvalidPayload(t *testing.T) {
	m, h := newLockedTestMapper(t)
	assert.ErrorIs(t, m.Set(h, metadata.Dataspace, []byte{1, 2}), ErrUnsupported)
}

func TestMetadataGlobalVisibility(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	raw := testRawHandle(testInfo())
	a, err := m.ImportBuffer(ctx, raw)
	require.NoError(t, err)
	b, err := m.ImportBuffer(ctx, raw)
	require.NoError(t, err)
	defer func() {
		_ = m.FreeBuffer(a)
		_ = m.FreeBuffer(b)
	}()

	require.NoError(t, m.Set(a, metadata.BlendMode, metadata.EncodeU32(metadata.BlendModePremultiplied)))

	v, err := m.Get(b, metadata.BlendMode)
	require.NoError(t, err)
	mode, err := metadata.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, uint32(metadata.BlendModePremultiplied), mode)
}

func TestVendorMetadataRoundtrip(t *testing.T) {
	tok := metadata.Type{Namespace: "vendor.gfxbuf.test", Code: 1}
	require.NoError(t, metadata.Default.Register(tok, metadata.Entry{
		Name:     "CompressionHint",
		Gettable: true,
		Settable: true,
	}))

	m, h := newLockedTestMapper(t)
	require.NoError(t, m.Set(h, tok, metadata.EncodeU64(3)))
	v, err := m.Get(h, tok)
	require.NoError(t, err)
	hint, err := metadata.DecodeU64(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), hint)
}

func TestGetFromDescriptorInfo(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	info := testInfo()

	v, err := m.GetFromDescriptorInfo(info, metadata.Width)
	require.NoError(t, err)
	w, err := metadata.DecodeU32(v)
	require.NoError(t, err)
	assert.Equal(t, info.Width, w)

	v, err = m.GetFromDescriptorInfo(info, metadata.Name)
	require.NoError(t, err)
	name, err := metadata.DecodeString(v)
	require.NoError(t, err)
	assert.Equal(t, info.Name, name)

	// Only exists after allocation.
	for _, tok := range []metadata.Type{metadata.Stride, metadata.AllocationSize, metadata.BufferID} {
		_, err = m.GetFromDescriptorInfo(info, tok)
		assert.ErrorIs(t, err, ErrUnsupported, tok.String())
	}
}

func TestListSupportedMetadataTypes(t *testing.T) {
	m, h := newLockedTestMapper(t)

	list, err := m.ListSupportedMetadataTypes()
	require.NoError(t, err)
	require.NotEmpty(t, list)

	// Every gettable standard token in the list resolves on a live buffer.
	for _, desc := range list {
		if !desc.Gettable || desc.Type.Namespace != metadata.StandardNamespace {
			continue
		}
		_, err := m.Get(h, desc.Type)
		assert.NoError(t, err, desc.Type.String())
	}
}

func TestDumpBuffer(t *testing.T) {
	m, h := newLockedTestMapper(t)

	d, err := m.DumpBuffer(h)
	require.NoError(t, err)
	assert.Equal(t, h.ID(), d.HandleID)
	assert.Equal(t, h.BufferID().String(), d.BufferID)
	require.NotEmpty(t, d.Entries)
	assert.NotEmpty(t, d.String())

	_, err = m.DumpBuffer(nil)
	assert.ErrorIs(t, err, ErrBadBuffer)
}

func TestDumpBuffersIncludesAllImports(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()
	ctx := context.Background()

	a, err := m.ImportBuffer(ctx, testRawHandle(testInfo()))
	require.NoError(t, err)
	b, err := m.ImportBuffer(ctx, testRawHandle(testInfo()))
	require.NoError(t, err)
	defer func() {
		_ = m.FreeBuffer(a)
		_ = m.FreeBuffer(b)
	}()

	dumps, err := m.DumpBuffers()
	require.NoError(t, err)
	seen := map[uint64]bool{}
	for _, d := range dumps {
		seen[d.HandleID] = true
	}
	assert.True(t, seen[a.ID()])
	assert.True(t, seen[b.ID()])
}
