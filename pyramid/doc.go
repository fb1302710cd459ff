/*
	Package pyramid provides the types, constants, and functions shared by every pixel
	source layout: dimension labels and selections, the plane indexer for OME dimension
	orders, tile geometry, the PixelSource read contract, the directory cache, channel
	statistics, logging and configuration.  Layout-specific sources live in the ometiff,
	multitiff and zarr packages and are presented to callers through PixelSource.
*/
package pyramid
