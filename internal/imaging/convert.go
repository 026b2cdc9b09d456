package imaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ConvertToPNG converts a scanner image the decoders cannot handle (vendor
// HEIC output, exotic wide-format frames) to PNG via an external converter.
// If cacheDir and hashHex are non-empty the PNG is persisted and reused at
// {cacheDir}/{hashHex}.png.
//
// Returns (outPath, cleanup, err). cleanup is nil when a cached artifact is
// used; otherwise it removes the temp directory.
func ConvertToPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in, cacheDir, hashHex string) (string, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if r == nil {
		r = ExecRunner{}
	}

	if cacheDir != "" && hashHex != "" {
		cached := filepath.Join(cacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			logger.Debug("using cached converted image", "cache", cached)
			return cached, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, err
		}
	}

	tmpDir, err := os.MkdirTemp("", "dp-conv-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	switch converter {
	case "magick":
		if _, errb, err2 := r.Run(ctx, "magick", in, out); err2 != nil {
			return "", cleanup, fmt.Errorf("magick convert failed: %w (%s)", err2, truncate(string(errb), 512))
		}
	case "heif-convert":
		if _, errb, err2 := r.Run(ctx, "heif-convert", in, out); err2 != nil {
			return "", cleanup, fmt.Errorf("heif-convert failed: %w (%s)", err2, truncate(string(errb), 512))
		}
	case "sips":
		if _, errb, err2 := r.Run(ctx, "sips", "-s", "format", "png", in, "--out", out); err2 != nil {
			return "", cleanup, fmt.Errorf("sips convert failed: %w (%s)", err2, truncate(string(errb), 512))
		}
	default:
		return "", cleanup, fmt.Errorf("unsupported image converter %q: use one of magick | heif-convert | sips", converter)
	}

	if _, statErr := os.Stat(out); statErr != nil {
		return "", cleanup, fmt.Errorf("conversion produced no output: %v", statErr)
	}

	if cacheDir != "" && hashHex != "" {
		cached := filepath.Join(cacheDir, hashHex+".png")
		if err := os.Rename(out, cached); err == nil {
			cleanup()
			return cached, nil, nil
		}
		// rename can fail across filesystems; fall back to the temp path
	}
	return out, cleanup, nil
}
