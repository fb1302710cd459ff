/*
	Package multitiff stitches independent single-plane TIFF images into one pixel
	source.  Each plane is placed at a (t, c, z) coordinate; the stack is single
	resolution with dimension order XYZCT.

	Files are opened through blob storage by URL, e.g.,

		loaded, err := multitiff.Load(ctx, []multitiff.File{
			{URL: "gs://bucket/dapi.tif", Selections: []pyramid.Selection{pyramid.NewSelection(0, 0, 0)}},
			{URL: "gs://bucket/gfp.tif", Selections: []pyramid.Selection{pyramid.NewSelection(0, 1, 0)}},
		}, multitiff.LoadOptions{})

	Channel names default to the file names.
*/
package multitiff
