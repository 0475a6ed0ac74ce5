// Package progress wraps mpb for aggregate byte-count bars.
package progress

import (
	"io"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type Progress struct {
	progress *mpb.Progress
}

func New() *Progress {
	return &Progress{
		progress: mpb.New(),
	}
}

// ByteBar adds a bar tracking total bytes with a live throughput readout.
func (p *Progress) ByteBar(total int64, name string) *mpb.Bar {
	return p.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 12, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.AverageSpeed(decor.SizeB1024(0), "% .2f", decor.WC{W: 14, C: decor.DindentRight}),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8, C: decor.DindentRight}),
		),
	)
}

// ProxyWriter counts everything written to w against the bar.
func (p *Progress) ProxyWriter(bar *mpb.Bar, w io.Writer) io.Writer {
	return bar.ProxyWriter(w)
}

func (p *Progress) Wait() {
	p.progress.Wait()
}

func (p *Progress) Reset() {
	if p.progress != nil {
		p.progress.Wait()
	}

	p.progress = mpb.New()
}
