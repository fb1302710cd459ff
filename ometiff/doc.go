/*
	Package ometiff reads multi-resolution OME-TIFF images as pyramids of pixel sources.

	Two pyramid layouts are handled.  Newer files store reduced resolutions as SubIFDs of
	each full resolution plane; these sub-directories are decoded lazily on first use and
	cached per (t, c, z, level).  Older files store each resolution as a repeated run of
	all planes in the top-level directory chain, one OME image per level.

	Dimension sizes and order come from caller-supplied OME metadata.  Directories and
	pixels come from a Decoder; FileDecoder is provided for files reachable through a
	RangeReader such as an *os.File or a blob store object.
*/
package ometiff
