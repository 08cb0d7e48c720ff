package gpu

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"go.uber.org/mock/gomock"

	"github.com/vkngwrapper/computepresent/internal/release"
)

func TestPushConstantsLayout(t *testing.T) {
	pc := NewPushConstants(core1_0.Extent2D{Width: 1280, Height: 720})

	b, err := pc.Bytes()
	require.NoError(t, err)
	require.Len(t, b, 16)

	values := make([]float32, 4)
	for i := range values {
		values[i] = math.Float32frombits(common.ByteOrder.Uint32(b[i*4:]))
	}
	assert.Equal(t, []float32{1280, 720, 0, 0}, values)
}

func TestCheckCardinality(t *testing.T) {
	tests := []struct {
		name           string
		images         int
		sets           int
		commandBuffers int
		ok             bool
	}{
		{"equal", 3, 3, 3, true},
		{"single image", 1, 1, 1, true},
		{"missing set", 3, 2, 3, false},
		{"missing command buffer", 3, 3, 2, false},
		{"extra of both", 2, 3, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkCardinality(tt.images, tt.sets, tt.commandBuffers)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.HasAssertionFailure(err))
		})
	}
}

func TestRecordCommandBuffers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	device := mocks.NewDummyDevice(common.Vulkan1_0, []string{})
	driver := mocks1_0.NewMockCoreDeviceDriver(ctrl)
	commandPool := mocks.NewDummyCommandPool(device)

	swapchain := &Swapchain{Extent: core1_0.Extent2D{Width: 640, Height: 480}}
	var sets []core1_0.DescriptorSet
	var buffers []core1_0.CommandBuffer
	descriptorPool := mocks.NewDummyDescriptorPool(device)
	for i := 0; i < 3; i++ {
		swapchain.Images = append(swapchain.Images, SwapchainImage{Image: mocks.NewDummyImage(device)})
		sets = append(sets, mocks.NewDummyDescriptorSet(descriptorPool, device))
		buffers = append(buffers, mocks.NewDummyCommandBuffer(commandPool, device))
	}

	logger := discardLogger()
	p := &ComputePipeline{
		Pipeline:       mocks.NewDummyPipeline(device),
		PipelineLayout: mocks.NewDummyPipelineLayout(device),
		DescriptorSets: sets,
		PushConstants:  NewPushConstants(swapchain.Extent),
		GroupsX:        40,
		GroupsY:        30,
		device:         &Device{Driver: driver, QueueFamily: 2},
		logger:         logger,
		resources:      release.NewStack(logger),
	}
	pushBytes, err := p.PushConstants.Bytes()
	require.NoError(t, err)

	driver.EXPECT().CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{QueueFamilyIndex: 2}).
		Return(commandPool, core1_0.VKSuccess, nil)
	driver.EXPECT().AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 3,
	}).Return(buffers, core1_0.VKSuccess, nil)

	for i, buffer := range buffers {
		image := swapchain.Images[i].Image

		gomock.InOrder(
			driver.EXPECT().BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
				Flags: core1_0.CommandBufferUsageSimultaneousUse,
			}).Return(core1_0.VKSuccess, nil),
			// The layout transition must start no earlier than the stage the
			// acquire semaphore is waited on.
			driver.EXPECT().CmdPipelineBarrier(buffer, core1_0.PipelineStageComputeShader, core1_0.PipelineStageComputeShader,
				core1_0.DependencyFlags(0), gomock.Nil(), gomock.Nil(), gomock.Any()).DoAndReturn(
				func(_ core1_0.CommandBuffer, _, _ core1_0.PipelineStageFlags, _ core1_0.DependencyFlags, _ []core1_0.MemoryBarrier, _ []core1_0.BufferMemoryBarrier, barriers []core1_0.ImageMemoryBarrier) error {
					require.Len(t, barriers, 1)
					assert.Equal(t, image, barriers[0].Image)
					assert.Equal(t, core1_0.ImageLayoutUndefined, barriers[0].OldLayout)
					assert.Equal(t, core1_0.ImageLayoutGeneral, barriers[0].NewLayout)
					assert.Equal(t, core1_0.AccessShaderWrite, barriers[0].DstAccessMask)
					return nil
				}),
			driver.EXPECT().CmdBindPipeline(buffer, core1_0.PipelineBindPointCompute, p.Pipeline),
			driver.EXPECT().CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointCompute, p.PipelineLayout, 0,
				[]core1_0.DescriptorSet{sets[i]}, gomock.Nil()),
			driver.EXPECT().CmdPushConstants(buffer, p.PipelineLayout, core1_0.StageCompute, 0, pushBytes),
			driver.EXPECT().CmdDispatch(buffer, 40, 30, 1),
			driver.EXPECT().CmdPipelineBarrier(buffer, core1_0.PipelineStageComputeShader, core1_0.PipelineStageBottomOfPipe,
				core1_0.DependencyFlags(0), gomock.Nil(), gomock.Nil(), gomock.Any()).DoAndReturn(
				func(_ core1_0.CommandBuffer, _, _ core1_0.PipelineStageFlags, _ core1_0.DependencyFlags, _ []core1_0.MemoryBarrier, _ []core1_0.BufferMemoryBarrier, barriers []core1_0.ImageMemoryBarrier) error {
					require.Len(t, barriers, 1)
					assert.Equal(t, image, barriers[0].Image)
					assert.Equal(t, core1_0.ImageLayoutGeneral, barriers[0].OldLayout)
					assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, barriers[0].NewLayout)
					assert.Equal(t, core1_0.AccessShaderWrite, barriers[0].SrcAccessMask)
					return nil
				}),
			driver.EXPECT().EndCommandBuffer(buffer).Return(core1_0.VKSuccess, nil),
		)
	}

	require.NoError(t, p.recordCommandBuffers(swapchain))
	assert.Equal(t, commandPool, p.CommandPool)
	assert.Equal(t, buffers, p.CommandBuffers)
	require.NoError(t, checkCardinality(len(swapchain.Images), len(p.DescriptorSets), len(p.CommandBuffers)))

	driver.EXPECT().FreeCommandBuffers(buffers[0], buffers[1], buffers[2])
	driver.EXPECT().DestroyCommandPool(commandPool, nil)
	p.Destroy()
}

func TestNewComputePipelineMissingProgram(t *testing.T) {
	path := filepath.Join(t.TempDir(), "comp.spv")

	_, err := NewComputePipeline(&Device{}, &Swapchain{}, path, discardLogger())
	require.Error(t, err)
	assert.True(t, IsContractViolation(err))
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "go generate ./shaders")
}
