package utils

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// NewProgressBar 创建进度条
// out为nil时写到stderr
func NewProgressBar(max int, description string, out io.Writer) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("条目"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if out == nil {
		out = os.Stderr
	}
	opts = append(opts, progressbar.OptionSetWriter(out))
	return progressbar.NewOptions(max, opts...)
}
