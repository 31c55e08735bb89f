// Command rhidemo renders the rhi sample scenes off-screen and writes
// them as PNG files.
//
// Usage:
//
//	rhidemo caps
//	rhidemo query --output query.png
//	rhidemo rendertarget --size 512 --rt-samples 8 --output rendertarget.png
package main

import (
	"fmt"
	"os"

	_ "github.com/gogpu/rhi/backend/software"
	_ "github.com/gogpu/rhi/backend/wgpu"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rhidemo:", err)
		os.Exit(1)
	}
}
