package registry_test

import (
	"testing"

	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/registry"
	"github.com/stretchr/testify/assert"
)

func Test_Registry_AddRemoveCount(t *testing.T) {
	reg := registry.New()
	assert.Equal(t, 0, reg.Count())

	h1 := handleref.New(1, "/a", false, false)
	h2 := handleref.New(2, "/b", false, false)
	reg.Add(h1.Descriptor, h1)
	reg.Add(h2.Descriptor, h2)
	assert.Equal(t, 2, reg.Count())

	reg.Remove(h1.Descriptor)
	assert.Equal(t, 1, reg.Count())

	reg.Remove(h2.Descriptor)
	assert.Equal(t, 0, reg.Count())
}

func Test_Registry_ZeroDescriptorIgnored(t *testing.T) {
	reg := registry.New()
	sentinel := handleref.New(0, "/dir", true, false)
	reg.Add(sentinel.Descriptor, sentinel)
	assert.Equal(t, 0, reg.Count())
}

func Test_Registry_HandleCloseDeregisters(t *testing.T) {
	reg := registry.New()
	h := handleref.New(7, "/f", false, false, handleref.WithDeregisterer(reg.Remove))
	reg.Add(h.Descriptor, h)
	assert.Equal(t, 1, reg.Count())

	assert.NoError(t, h.Close())
	assert.Equal(t, 0, reg.Count())

	// idempotent.
	assert.NoError(t, h.Close())
	assert.Equal(t, 0, reg.Count())
}
