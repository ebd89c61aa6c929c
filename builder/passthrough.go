package builder

import (
	"context"

	"gro/buildcfg"
	"gro/paths"
)

// Passthrough copies a source file unchanged into the build output tree.
// It is used for assets no compiler handles.
type Passthrough struct{}

var _ Builder = Passthrough{}

func (Passthrough) Build(_ context.Context, src Source, cfg *buildcfg.Config, bc *Context) ([]Output, error) {
	id := paths.ToBuildOutPath(bc.BuildDir, bc.Dev, cfg.Name, paths.ToBasePath(src.SourceDir, src.ID))
	return []Output{{
		ID:       id,
		Encoding: src.Encoding,
		Contents: src.Contents,
	}}, nil
}
