package gpu

import (
	"fmt"
	"image"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gmlewis/stlview/stl"
	"github.com/gmlewis/stlview/viewer"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

const (
	colorFormat = wgpu.TextureFormatRGBA8Unorm
	depthFormat = wgpu.TextureFormatDepth24Plus
)

// clipDepth maps GL clip-space depth [-w,w] to WebGPU's [0,w].
var clipDepth = mgl32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// WebGPURenderer is an offscreen renderer implementation using WebGPU.
type WebGPURenderer struct {
	Logger *zap.Logger // optional

	width       int
	height      int
	bytesPerRow uint32

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	pipeline      *wgpu.RenderPipeline
	bindGroup     *wgpu.BindGroup
	uniformBuffer *wgpu.Buffer

	vertexBuffer *wgpu.Buffer
	indexBuffer  *wgpu.Buffer
	numIndices   uint32
	sum          uint64
	uploaded     bool

	readBuffer    *wgpu.Buffer
	targetTexture *wgpu.Texture
	targetView    *wgpu.TextureView
	depthTexture  *wgpu.Texture
	depthView     *wgpu.TextureView
}

var _ viewer.Renderer = &WebGPURenderer{}

// Init creates the device and pipeline. WebGPURenderer never opens a
// window, so view is ignored.
func (r *WebGPURenderer) Init(width, height int, view bool) error {
	if r.instance == nil {
		r.instance = wgpu.CreateInstance(nil)
		if r.instance == nil {
			return fmt.Errorf("failed to create wgpu instance")
		}

		var err error
		r.adapter, err = r.instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
		if err != nil {
			return fmt.Errorf("failed to request wgpu adapter: %w", err)
		}

		r.device, err = r.adapter.RequestDevice(nil)
		if err != nil {
			return fmt.Errorf("failed to request wgpu device: %w", err)
		}

		r.queue = r.device.GetQueue()

		if err := r.createPipeline(); err != nil {
			return err
		}
		logger(r.Logger).Info("WebGPU device created")
	}

	return r.Resize(width, height)
}

func (r *WebGPURenderer) createPipeline() error {
	shaderModule, err := r.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: wgslShader,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create shader module: %w", err)
	}
	defer shaderModule.Release()

	ident := mgl32.Ident4()
	r.uniformBuffer, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Uniform Buffer",
		Contents: wgpu.ToBytes(ident[:]),
		Usage:    wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create uniform buffer: %w", err)
	}

	bindGroupLayout, err := r.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex,
				Buffer: wgpu.BufferBindingLayout{
					Type: wgpu.BufferBindingTypeUniform,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}
	defer bindGroupLayout.Release()

	r.bindGroup, err = r.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: bindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{
				Binding: 0,
				Buffer:  r.uniformBuffer,
				Size:    uint64(len(ident) * 4),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create bind group: %w", err)
	}

	pipelineLayout, err := r.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline layout: %w", err)
	}
	defer pipelineLayout.Release()

	r.pipeline, err = r.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     shaderModule,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: 3 * 4,
					Attributes: []wgpu.VertexAttribute{
						{
							Format:         wgpu.VertexFormatFloat32x3,
							Offset:         0,
							ShaderLocation: 0,
						},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shaderModule,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    colorFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		DepthStencil: &wgpu.DepthStencilState{
			Format:            depthFormat,
			DepthWriteEnabled: true,
			DepthCompare:      wgpu.CompareFunctionLess,
			StencilFront:      wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
			StencilBack:       wgpu.StencilFaceState{Compare: wgpu.CompareFunctionAlways},
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create render pipeline: %w", err)
	}
	return nil
}

// Resize recreates the color, depth and read-back targets.
func (r *WebGPURenderer) Resize(width, height int) error {
	if r.device == nil {
		return fmt.Errorf("renderer not initialized")
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid surface size %vx%v", width, height)
	}
	if r.targetTexture != nil && r.width == width && r.height == height {
		return nil
	}
	r.releaseTargets()
	r.width = width
	r.height = height

	size := wgpu.Extent3D{
		Width:              uint32(width),
		Height:             uint32(height),
		DepthOrArrayLayers: 1,
	}

	var err error
	r.targetTexture, err = r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Target Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        colorFormat,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("failed to create target texture: %w", err)
	}
	r.targetView, err = r.targetTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create texture view: %w", err)
	}

	r.depthTexture, err = r.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Depth Texture",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("failed to create depth texture: %w", err)
	}
	r.depthView, err = r.depthTexture.CreateView(nil)
	if err != nil {
		return fmt.Errorf("failed to create depth view: %w", err)
	}

	// Rows copied out of a texture must be 256-byte aligned.
	r.bytesPerRow = (uint32(width*4) + 255) &^ 255
	r.readBuffer, err = r.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Read Buffer",
		Size:  uint64(r.bytesPerRow * uint32(height)),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create read buffer: %w", err)
	}
	return nil
}

// Upload replaces the vertex and index buffers. The old buffers are
// released only after the new ones exist.
func (r *WebGPURenderer) Upload(mesh *stl.Mesh) error {
	if r.device == nil {
		return fmt.Errorf("renderer not initialized")
	}
	sum := mesh.Sum64()
	if r.uploaded && sum == r.sum && uint32(3*mesh.NumTriangles()) == r.numIndices {
		return nil
	}

	verts, indices := mesh.Indexed()
	var vertexBuffer, indexBuffer *wgpu.Buffer
	if len(indices) > 0 {
		data := make([]float32, 0, 3*len(verts))
		for _, v := range verts {
			data = append(data, v[0], v[1], v[2])
		}

		var err error
		vertexBuffer, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "Vertex Buffer",
			Contents: wgpu.ToBytes(data),
			Usage:    wgpu.BufferUsageVertex,
		})
		if err != nil {
			return fmt.Errorf("failed to create vertex buffer: %w", err)
		}
		indexBuffer, err = r.device.CreateBufferInit(&wgpu.BufferInitDescriptor{
			Label:    "Index Buffer",
			Contents: wgpu.ToBytes(indices),
			Usage:    wgpu.BufferUsageIndex,
		})
		if err != nil {
			vertexBuffer.Release()
			return fmt.Errorf("failed to create index buffer: %w", err)
		}
	}

	r.releaseMesh()
	r.vertexBuffer = vertexBuffer
	r.indexBuffer = indexBuffer
	r.numIndices = uint32(len(indices))
	r.sum = sum
	r.uploaded = true
	return nil
}

func (r *WebGPURenderer) Render(projection, modelView mgl32.Mat4) (image.Image, error) {
	if r.targetTexture == nil {
		return nil, fmt.Errorf("renderer not initialized")
	}

	mvp := clipDepth.Mul4(projection.Mul4(modelView))
	r.queue.WriteBuffer(r.uniformBuffer, 0, wgpu.ToBytes(mvp[:]))

	encoder, err := r.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()

	renderPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:       r.targetView,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
			},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            r.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1,
		},
	})
	renderPass.SetPipeline(r.pipeline)
	renderPass.SetBindGroup(0, r.bindGroup, nil)
	if r.numIndices > 0 {
		renderPass.SetVertexBuffer(0, r.vertexBuffer, 0, r.vertexBuffer.GetSize())
		renderPass.SetIndexBuffer(r.indexBuffer, wgpu.IndexFormatUint32, 0, r.indexBuffer.GetSize())
		renderPass.DrawIndexed(r.numIndices, 1, 0, 0, 0)
	}
	if err := renderPass.End(); err != nil {
		renderPass.Release()
		return nil, err
	}
	renderPass.Release()

	encoder.CopyTextureToBuffer(
		r.targetTexture.AsImageCopy(),
		&wgpu.ImageCopyBuffer{
			Buffer: r.readBuffer,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  r.bytesPerRow,
				RowsPerImage: uint32(r.height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(r.width),
			Height:             uint32(r.height),
			DepthOrArrayLayers: 1,
		},
	)

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	r.queue.Submit(commandBuffer)
	commandBuffer.Release()

	return r.readBack()
}

func (r *WebGPURenderer) readBack() (image.Image, error) {
	size := uint64(r.bytesPerRow * uint32(r.height))
	done := make(chan wgpu.BufferMapAsyncStatus, 1)
	r.readBuffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		done <- status
	})

	var status wgpu.BufferMapAsyncStatus
poll:
	for {
		r.device.Poll(false, nil)
		select {
		case status = <-done:
			break poll
		default:
		}
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map read buffer: %v", status)
	}

	data := r.readBuffer.GetMappedRange(0, uint(size))
	rgba := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	for y := 0; y < r.height; y++ {
		src := uint32(y) * r.bytesPerRow
		dst := y * rgba.Stride
		copy(rgba.Pix[dst:dst+r.width*4], data[src:src+uint32(r.width*4)])
	}
	r.readBuffer.Unmap()

	return rgba, nil
}

func (r *WebGPURenderer) releaseMesh() {
	if r.vertexBuffer != nil {
		r.vertexBuffer.Release()
		r.vertexBuffer = nil
	}
	if r.indexBuffer != nil {
		r.indexBuffer.Release()
		r.indexBuffer = nil
	}
}

func (r *WebGPURenderer) releaseTargets() {
	if r.readBuffer != nil {
		r.readBuffer.Release()
		r.readBuffer = nil
	}
	if r.targetView != nil {
		r.targetView.Release()
		r.targetView = nil
	}
	if r.targetTexture != nil {
		r.targetTexture.Release()
		r.targetTexture = nil
	}
	if r.depthView != nil {
		r.depthView.Release()
		r.depthView = nil
	}
	if r.depthTexture != nil {
		r.depthTexture.Release()
		r.depthTexture = nil
	}
}

func (r *WebGPURenderer) Close() {
	r.releaseTargets()
	r.releaseMesh()
	if r.uniformBuffer != nil {
		r.uniformBuffer.Release()
	}
	if r.pipeline != nil {
		r.pipeline.Release()
	}
	if r.bindGroup != nil {
		r.bindGroup.Release()
	}
	if r.device != nil {
		r.device.Release()
	}
	if r.adapter != nil {
		r.adapter.Release()
	}
	if r.instance != nil {
		r.instance.Release()
	}
	*r = WebGPURenderer{Logger: r.Logger}
}

const wgslShader = `
struct Uniforms {
    mvp: mat4x4f,
};

@group(0) @binding(0) var<uniform> uniforms: Uniforms;

@vertex
fn vs_main(@location(0) vert: vec3f) -> @builtin(position) vec4f {
    return uniforms.mvp * vec4f(vert, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4f {
    return vec4f(1.0, 1.0, 1.0, 1.0);
}
`
