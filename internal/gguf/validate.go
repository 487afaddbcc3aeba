package gguf

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks that the tensor descriptors are consistent with the
// declared architecture metadata: every per-layer tensor must belong to a
// declared block, the token embedding must match the declared embedding
// width, and no tensor may point outside the data section. Containers that
// decode cleanly but fail here cannot be turned into a model.
func (c *Container) Validate() error {
	arch, ok := c.Architecture()
	if !ok {
		return fmt.Errorf("missing general.architecture metadata")
	}
	blockCount, hasBlocks := c.Uint(arch + ".block_count")
	embedLen, hasEmbed := c.Uint(arch + ".embedding_length")
	if !hasBlocks {
		return fmt.Errorf("architecture %s declares no block_count", arch)
	}

	var dataSize uint64
	if n := uint64(len(c.Data)); n > c.DataOffset {
		dataSize = n - c.DataOffset
	}
	for _, t := range c.Tensors {
		if len(t.Dims) == 0 {
			return fmt.Errorf("tensor %s has no dimensions", t.Name)
		}
		if t.Offset >= dataSize && dataSize > 0 {
			return fmt.Errorf("tensor %s offset %d beyond data section (%d bytes)", t.Name, t.Offset, dataSize)
		}
		if layer, ok := blockIndex(t.Name); ok {
			if uint64(layer) >= blockCount {
				return fmt.Errorf("tensor %s references block %d but architecture %s declares %d blocks",
					t.Name, layer, arch, blockCount)
			}
		}
		if t.Name == "token_embd.weight" && hasEmbed {
			if t.Dims[0] != embedLen {
				return fmt.Errorf("token_embd.weight dim %d does not match %s.embedding_length %d",
					t.Dims[0], arch, embedLen)
			}
		}
	}
	return nil
}

// blockIndex extracts N from tensor names of the form "blk.N.xxx".
func blockIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "blk.")
	if !ok {
		return 0, false
	}
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[:idx])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
