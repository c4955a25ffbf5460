// Package asset makes large remote files available at a local path.
//
// [Fetcher.Ensure] is idempotent: when the file already exists it returns
// at once, without touching the network and without reporting progress.
// Otherwise the body of an HTTP GET is streamed into a pending file next to
// the destination and renamed into place only once the whole body has been
// written, so an interrupted download never leaves a truncated file at the
// final path.
//
// Progress is reported as whole percentages of the advertised content
// length, each value at most once, finishing at 100. When the server omits
// the length a single 0% update is followed by byte-count log lines.
//
// Assets are never versioned. A cached file is trusted until it is deleted.
//
// Example usage:
//
//	f := asset.New()
//	fetched, err := f.Ensure(ctx, paths.BaseImage(), asset.BaseImageURL, reporter)
//	if err != nil {
//	    return err
//	}
package asset
