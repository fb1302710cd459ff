package pyramid

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GetRasters reads full planes for several selections of one source as a single
// request group, e.g., all visible channels for one viewport update.  Results follow
// the order of the selections.  If any read fails the rest of the group is cancelled
// and the first failure is returned.  A limit <= 0 uses DefaultReadConcurrency.
func GetRasters(ctx context.Context, src PixelSource, sels []Selection, limit int) ([]Raster, error) {
	return readGroup(ctx, sels, limit, func(gctx context.Context, sel Selection) (Raster, error) {
		return src.GetRaster(gctx, sel)
	})
}

// GetTiles reads tile (x, y) for several selections as a single request group.
func GetTiles(ctx context.Context, src PixelSource, x, y int, sels []Selection, limit int) ([]Raster, error) {
	return readGroup(ctx, sels, limit, func(gctx context.Context, sel Selection) (Raster, error) {
		return src.GetTile(gctx, x, y, sel)
	})
}

func readGroup(ctx context.Context, sels []Selection, limit int, read func(context.Context, Selection) (Raster, error)) ([]Raster, error) {
	if err := Aborted(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultReadConcurrency
	}
	rasters := make([]Raster, len(sels))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sel := range sels {
		i, sel := i, sel
		g.Go(func() error {
			r, err := read(gctx, sel)
			if err != nil {
				return err
			}
			rasters[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, CheckAborted(ctx, err)
	}
	return rasters, nil
}
