package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/mattn/go-mjpeg"
	"github.com/spf13/cobra"
)

// ProbeResult summarizes the frames read from a stream.
type ProbeResult struct {
	Frames  int
	Bounds  image.Rectangle
	Bytes   int
	Elapsed time.Duration
}

// FPS is the observed frame rate, measured from the first decoded frame.
func (r ProbeResult) FPS() float64 {
	if r.Frames < 2 || r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Frames-1) / r.Elapsed.Seconds()
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var frames int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Decode frames from a relay stream",
		Long: `Connects to a multipart MJPEG stream such as http://host:8080/video0, decodes ` +
			`the requested number of frames, and reports their dimensions and the observed rate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := Probe(ctx, args[0], frames)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames %dx%d, %d bytes, %.1f fps\n",
				result.Frames, result.Bounds.Dx(), result.Bounds.Dy(), result.Bytes, result.FPS())
			return nil
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 10, "Number of frames to decode")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	return cmd
}

// Probe reads n frames from the stream at url. Every frame must decode as
// JPEG and share the first frame's dimensions. A stream that ends early
// returns the frames read so far along with the error.
func Probe(ctx context.Context, url string, n int) (ProbeResult, error) {
	var result ProbeResult
	if n < 1 {
		return result, errors.New("frames must be at least 1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("%s: %s", url, resp.Status)
	}

	dec, err := mjpeg.NewDecoderFromResponse(resp)
	if err != nil {
		return result, fmt.Errorf("not a multipart stream: %w", err)
	}

	var start time.Time
	for result.Frames < n {
		raw, err := dec.DecodeRaw()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return result, fmt.Errorf("frame %d: %w", result.Frames, err)
		}

		img, err := jpeg.Decode(bytes.NewReader(raw))
		if err != nil {
			return result, fmt.Errorf("frame %d: %w", result.Frames, err)
		}

		switch {
		case result.Frames == 0:
			start = time.Now()
			result.Bounds = img.Bounds()
		case img.Bounds() != result.Bounds:
			return result, fmt.Errorf("frame %d is %v, first frame was %v", result.Frames, img.Bounds(), result.Bounds)
		}

		result.Frames++
		result.Bytes += len(raw)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}
