package gpu

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/computepresent/internal/policy"
	"github.com/vkngwrapper/computepresent/internal/release"
	"github.com/vkngwrapper/computepresent/internal/spirv"
)

// PushConstants is the block pushed before each dispatch: the target width
// and height followed by two reserved slots.
type PushConstants mgl32.Vec4

func NewPushConstants(extent core1_0.Extent2D) PushConstants {
	return PushConstants{float32(extent.Width), float32(extent.Height), 0, 0}
}

// Bytes encodes the block in the layout the device program reads.
func (p PushConstants) Bytes() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, common.ByteOrder, p)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ComputePipeline owns the device program, its layouts and pipeline, and one
// descriptor set and pre-recorded command buffer per swapchain image.
// Descriptor set i and command buffer i target image i for the whole
// lifetime of the pipeline.
type ComputePipeline struct {
	ShaderModule        core1_0.ShaderModule
	DescriptorSetLayout core1_0.DescriptorSetLayout
	PipelineLayout      core1_0.PipelineLayout
	Pipeline            core1_0.Pipeline
	DescriptorPool      core1_0.DescriptorPool
	DescriptorSets      []core1_0.DescriptorSet
	CommandPool         core1_0.CommandPool
	CommandBuffers      []core1_0.CommandBuffer

	PushConstants    PushConstants
	GroupsX, GroupsY int

	device    *Device
	logger    *slog.Logger
	resources *release.Stack
}

func NewComputePipeline(device *Device, swapchain *Swapchain, programPath string, logger *slog.Logger) (p *ComputePipeline, err error) {
	logger = logger.With(slog.String("component", "pipeline"))
	p = &ComputePipeline{
		device:    device,
		logger:    logger,
		resources: release.NewStack(logger),
	}
	defer p.resources.ReleaseOnError(&err)

	code, err := spirv.Load(programPath)
	if err != nil {
		return nil, contractViolation(err, "load device program %s (build it with go generate ./shaders)", programPath)
	}

	err = p.createPipeline(code)
	if err != nil {
		return nil, err
	}

	err = p.createDescriptorSets(swapchain.Views())
	if err != nil {
		return nil, err
	}

	p.PushConstants = NewPushConstants(swapchain.Extent)
	p.GroupsX, p.GroupsY = policy.DispatchGroups(swapchain.Extent)

	err = p.recordCommandBuffers(swapchain)
	if err != nil {
		return nil, err
	}

	err = checkCardinality(len(swapchain.Images), len(p.DescriptorSets), len(p.CommandBuffers))
	if err != nil {
		return nil, err
	}

	logger.Info("compute pipeline ready",
		slog.String("program", programPath),
		slog.Int("groups_x", p.GroupsX),
		slog.Int("groups_y", p.GroupsY),
		slog.Int("local_size", policy.LocalGroupSize),
		slog.Int("command_buffers", len(p.CommandBuffers)))
	return p, nil
}

func (p *ComputePipeline) createPipeline(code []uint32) error {
	driver := p.device.Driver

	shaderModule, _, err := driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return errors.Wrap(err, "create shader module")
	}
	p.ShaderModule = shaderModule
	p.resources.Push("shader module", func() { driver.DestroyShaderModule(shaderModule, nil) })

	setLayout, _, err := driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeStorageImage,
				DescriptorCount: 1,

				StageFlags: core1_0.StageCompute,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor set layout")
	}
	p.DescriptorSetLayout = setLayout
	p.resources.Push("descriptor set layout", func() { driver.DestroyDescriptorSetLayout(setLayout, nil) })

	pipelineLayout, _, err := driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			setLayout,
		},
		PushConstantRanges: []core1_0.PushConstantRange{
			{
				StageFlags: core1_0.StageCompute,
				Offset:     0,
				Size:       binary.Size(PushConstants{}),
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}
	p.PipelineLayout = pipelineLayout
	p.resources.Push("pipeline layout", func() { driver.DestroyPipelineLayout(pipelineLayout, nil) })

	pipelines, _, err := driver.CreateComputePipelines(nil, nil,
		core1_0.ComputePipelineCreateInfo{
			Stage: core1_0.PipelineShaderStageCreateInfo{
				Stage:  core1_0.StageCompute,
				Module: shaderModule,
				Name:   "main",
			},
			Layout:            pipelineLayout,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		return errors.Wrap(err, "create compute pipeline")
	}
	pipeline := pipelines[0]
	p.Pipeline = pipeline
	p.resources.Push("pipeline", func() { driver.DestroyPipeline(pipeline, nil) })

	return nil
}

// createDescriptorSets allocates one set per view and binds it to that view
// once. The sets are never rewritten.
func (p *ComputePipeline) createDescriptorSets(views []core1_0.ImageView) error {
	driver := p.device.Driver

	pool, _, err := driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: len(views),
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeStorageImage,
				DescriptorCount: len(views),
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}
	p.DescriptorPool = pool
	// Sets are returned to the pool when it is destroyed.
	p.resources.Push("descriptor pool", func() { driver.DestroyDescriptorPool(pool, nil) })

	var allocLayouts []core1_0.DescriptorSetLayout
	for i := 0; i < len(views); i++ {
		allocLayouts = append(allocLayouts, p.DescriptorSetLayout)
	}

	p.DescriptorSets, _, err = driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	var writes []core1_0.WriteDescriptorSet
	for i, view := range views {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          p.DescriptorSets[i],
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeStorageImage,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					ImageLayout: core1_0.ImageLayoutGeneral,
				},
			},
		})
	}

	err = driver.UpdateDescriptorSets(writes, nil)
	if err != nil {
		return errors.Wrap(err, "write descriptor sets")
	}
	return nil
}

func (p *ComputePipeline) recordCommandBuffers(swapchain *Swapchain) error {
	driver := p.device.Driver

	commandPool, _, err := driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: p.device.QueueFamily,
	})
	if err != nil {
		return errors.Wrap(err, "create command pool")
	}
	p.CommandPool = commandPool
	p.resources.Push("command pool", func() { driver.DestroyCommandPool(commandPool, nil) })

	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(swapchain.Images),
	})
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	p.CommandBuffers = buffers
	p.resources.Push("command buffers", func() { driver.FreeCommandBuffers(buffers...) })

	pushBytes, err := p.PushConstants.Bytes()
	if err != nil {
		return errors.Wrap(err, "encode push constants")
	}

	for bufferIdx, buffer := range buffers {
		err = p.record(buffer, swapchain.Images[bufferIdx].Image, p.DescriptorSets[bufferIdx], pushBytes)
		if err != nil {
			return errors.Wrapf(err, "record command buffer %d", bufferIdx)
		}
	}
	return nil
}

func (p *ComputePipeline) record(buffer core1_0.CommandBuffer, image core1_0.Image, set core1_0.DescriptorSet, pushBytes []byte) error {
	driver := p.device.Driver

	// The same buffer may be pending on the queue while it is submitted again.
	_, err := driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageSimultaneousUse,
	})
	if err != nil {
		return err
	}

	subresource := core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     1,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	// Previous contents are not needed; the dispatch overwrites the image.
	// The source stage must match the acquire semaphore's wait stage so the
	// transition is ordered after the image is released by presentation.
	err = driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageComputeShader, core1_0.PipelineStageComputeShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           core1_0.ImageLayoutUndefined,
			NewLayout:           core1_0.ImageLayoutGeneral,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange:    subresource,
			SrcAccessMask:       0,
			DstAccessMask:       core1_0.AccessShaderWrite,
		},
	})
	if err != nil {
		return err
	}

	driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointCompute, p.Pipeline)
	driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointCompute, p.PipelineLayout, 0, []core1_0.DescriptorSet{
		set,
	}, nil)
	driver.CmdPushConstants(buffer, p.PipelineLayout, core1_0.StageCompute, 0, pushBytes)
	driver.CmdDispatch(buffer, p.GroupsX, p.GroupsY, 1)

	err = driver.CmdPipelineBarrier(buffer, core1_0.PipelineStageComputeShader, core1_0.PipelineStageBottomOfPipe, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           core1_0.ImageLayoutGeneral,
			NewLayout:           khr_swapchain.ImageLayoutPresentSrc,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange:    subresource,
			SrcAccessMask:       core1_0.AccessShaderWrite,
			DstAccessMask:       0,
		},
	})
	if err != nil {
		return err
	}

	_, err = driver.EndCommandBuffer(buffer)
	return err
}

// checkCardinality enforces one view, one descriptor set and one command
// buffer per swapchain image.
func checkCardinality(images, descriptorSets, commandBuffers int) error {
	if descriptorSets != images || commandBuffers != images {
		return errors.AssertionFailedf("per-image resources out of step: %d images, %d descriptor sets, %d command buffers",
			images, descriptorSets, commandBuffers)
	}
	return nil
}

func (p *ComputePipeline) Destroy() {
	p.resources.Release()
}
