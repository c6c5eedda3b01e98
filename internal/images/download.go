// ABOUTME: Size-capped image download into the local image directory
// ABOUTME: Rejects non-2xx responses and bodies larger than the configured maximum

package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// ErrTooLarge is returned when an image exceeds the configured byte limit.
var ErrTooLarge = errors.New("image exceeds size limit")

type downloader struct {
	client   *http.Client
	maxBytes int64
}

func newDownloader(maxBytes int64) *downloader {
	return &downloader{client: &http.Client{}, maxBytes: maxBytes}
}

// download writes url to path. Nothing is left on disk when it fails.
func (d *downloader) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download failed: %s", resp.Status)
	}
	if resp.ContentLength > d.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > d.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, d.maxBytes)
	}
	if len(body) == 0 {
		return errors.New("empty image body")
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return nil
}
