package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasm-everything/we/internal/abi"
)

func i32s(n int) []api.ValueType {
	types := make([]api.ValueType, n)
	for i := range types {
		types[i] = api.ValueTypeI32
	}
	return types
}

func u32(stack []uint64, i int) uint32 {
	return api.DecodeU32(stack[i])
}

// registerImports provides the host functions to guests under the
// configured module name.
func (h *Host) registerImports(ctx context.Context) error {
	builder := h.runtime.NewHostModuleBuilder(h.cfg.ImportModule)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			h.invoke(ctx, wrapModule(mod),
				span{u32(stack, 0), u32(stack, 1)},
				span{u32(stack, 2), u32(stack, 3)},
				span{u32(stack, 4), u32(stack, 5)},
				u32(stack, 6), u32(stack, 7))
		}), i32s(8), nil).
		Export(abi.ImportInvoke)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			h.invokeSync(ctx, wrapModule(mod),
				span{u32(stack, 0), u32(stack, 1)},
				span{u32(stack, 2), u32(stack, 3)},
				span{u32(stack, 4), u32(stack, 5)},
				u32(stack, 6), u32(stack, 7))
		}), i32s(8), nil).
		Export(abi.ImportInvokeSync)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			h.logProxy(ctx, wrapModule(mod), span{u32(stack, 0), u32(stack, 1)})
		}), i32s(2), nil).
		Export(abi.ImportLogProxy)

	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			h.callback(ctx, wrapModule(mod), span{u32(stack, 0), u32(stack, 1)}, u32(stack, 2), u32(stack, 3))
		}), i32s(4), nil).
		Export(abi.ImportCallback)

	_, err := builder.Instantiate(ctx)
	return err
}
