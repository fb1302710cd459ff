/*
	Package zarr reads multi-resolution images from zarr v2 array stores held in blob
	storage.

	Each resolution level is an array whose axes are named by labels, usually t, c, z, y
	and x.  When the tile size equals the spatial chunk extents and every other axis is
	chunked by one, interior tiles are whole chunks and are decoded without copying.
	Otherwise tiles are read as slices assembled from the overlapping chunks.

	Chunks are decompressed through a codec.Registry and may be kept in a ChunkCache
	sized by the [cache] chunk_mb setting.  Chunks missing from the store read as the
	array's fill value.
*/
package zarr
