package archive

import (
	"context"

	getter "github.com/hashicorp/go-getter"
)

// Limits applied to ZIP and tar.gz archives against decompression bombs.
const (
	maxMembers    = 10000
	maxMemberSize = 4 << 30
)

// getterExpander adapts a go-getter decompressor, which already guards
// against members escaping the destination.
type getterExpander struct {
	d getter.Decompressor
}

func newZipExpander() getterExpander {
	return getterExpander{d: &getter.ZipDecompressor{
		FilesLimit:    maxMembers,
		FileSizeLimit: maxMemberSize,
	}}
}

func newTarGzExpander() getterExpander {
	return getterExpander{d: &getter.TarGzipDecompressor{
		FilesLimit:    maxMembers,
		FileSizeLimit: maxMemberSize,
	}}
}

func (g getterExpander) expandInto(ctx context.Context, archive, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.d.Decompress(dir, archive, true, 0o022)
}
