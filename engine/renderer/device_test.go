package renderer

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectDevicePrefersDiscrete(t *testing.T) {
	_, err := selectDevice(nil)
	assert.ErrorIs(t, err, core.ErrNoDevice)

	adapters := []metadata.AdapterInfo{
		headless.DefaultAdapter("integrated", metadata.AdapterTypeIntegrated),
		headless.DefaultAdapter("cpu", metadata.AdapterTypeCPU),
		headless.DefaultAdapter("discrete", metadata.AdapterTypeDiscrete),
	}
	idx, err := selectDevice(adapters)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	idx, err = selectDevice(adapters[:2])
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestFindQueueFamilyNeedsGraphicsAndPresent(t *testing.T) {
	adapter := headless.DefaultAdapter("gpu", metadata.AdapterTypeDiscrete)
	adapter.QueueFamilies = []metadata.QueueFamily{
		{Index: 0, Graphics: true},
		{Index: 1, Present: true},
		{Index: 2, Graphics: true, Present: true},
	}
	family, err := findQueueFamily(adapter)
	require.NoError(t, err)
	assert.EqualValues(t, 2, family)

	adapter.QueueFamilies = adapter.QueueFamilies[:2]
	_, err = findQueueFamily(adapter)
	assert.ErrorIs(t, err, core.ErrNoGraphicsQueue)
}

func TestCheckFeatures(t *testing.T) {
	adapter := headless.DefaultAdapter("gpu", metadata.AdapterTypeDiscrete)
	assert.NoError(t, checkFeatures(adapter))

	noAniso := adapter
	noAniso.Features.SamplerAnisotropy = false
	assert.ErrorIs(t, checkFeatures(noAniso), core.ErrFeatureNotSupported)

	small := adapter
	small.Limits.MaxPushConstantsSize = 128
	assert.ErrorIs(t, checkFeatures(small), core.ErrFeatureNotSupported)
}

func TestMaxUsableSampleCount(t *testing.T) {
	limits := metadata.AdapterLimits{
		FramebufferColorSampleCounts: metadata.SampleCount1 | metadata.SampleCount2 | metadata.SampleCount4 | metadata.SampleCount8,
		FramebufferDepthSampleCounts: metadata.SampleCount1 | metadata.SampleCount2 | metadata.SampleCount4,
	}
	assert.Equal(t, metadata.SampleCount4, maxUsableSampleCount(8, limits))
	assert.Equal(t, metadata.SampleCount4, maxUsableSampleCount(4, limits))
	assert.Equal(t, metadata.SampleCount2, maxUsableSampleCount(3, limits))
	assert.Equal(t, metadata.SampleCount1, maxUsableSampleCount(1, limits))
	assert.Equal(t, metadata.SampleCount1, maxUsableSampleCount(0, limits))
}

func TestFindMemoryType(t *testing.T) {
	dc := &DeviceContext{Adapter: headless.DefaultAdapter("gpu", metadata.AdapterTypeDiscrete)}

	idx, err := dc.findMemoryType(0b111, metadata.MemoryPropertyDeviceLocal)
	require.NoError(t, err)
	assert.EqualValues(t, 0, idx)

	idx, err = dc.findMemoryType(0b111, metadata.MemoryPropertyHostVisible|metadata.MemoryPropertyHostCoherent)
	require.NoError(t, err)
	assert.EqualValues(t, 1, idx)

	// the type bits exclude the first match
	idx, err = dc.findMemoryType(0b100, metadata.MemoryPropertyHostVisible)
	require.NoError(t, err)
	assert.EqualValues(t, 2, idx)

	_, err = dc.findMemoryType(0b001, metadata.MemoryPropertyHostVisible)
	assert.ErrorIs(t, err, core.ErrNoMemoryType)
}

func TestDetectDepthFormat(t *testing.T) {
	opts := headless.DefaultOptions()
	opts.DepthFormats = []metadata.Format{metadata.FormatD24UnormS8Uint}
	f, err := detectDepthFormat(headless.New(opts))
	require.NoError(t, err)
	assert.Equal(t, metadata.FormatD24UnormS8Uint, f)

	opts.DepthFormats = nil
	_, err = detectDepthFormat(headless.New(opts))
	assert.ErrorIs(t, err, core.ErrFeatureNotSupported)
}

func TestInitFailsWithoutUsableDevice(t *testing.T) {
	opts := headless.DefaultOptions()
	opts.Adapters[0].Features.SampleRateShading = false
	h := newHarness(t, opts, testConfig())

	err := h.r.Init(h.window)
	assert.ErrorIs(t, err, core.ErrFeatureNotSupported)
	assert.Empty(t, h.be.LiveObjects())

	// a failed Init leaves nothing to terminate
	h.r.Term()
	assert.Empty(t, h.be.Violations())
}
