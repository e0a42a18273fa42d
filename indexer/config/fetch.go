package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	getter "github.com/hashicorp/go-getter"
)

// FetchTimeout bounds the download of a remote registry
const FetchTimeout = 120 * time.Second

// FetchRegistry makes the registry at src available on disk and returns its path.
// A src that already exists on disk is returned as is, anything else is handed to
// go-getter (http(s), s3, gcs, git...) and downloaded into dir.
func FetchRegistry(ctx context.Context, src, dir string) (string, error) {
	if info, err := os.Stat(src); err == nil && !info.IsDir() {
		return src, nil
	}

	dst := filepath.Join(dir, "registry"+registryExt(src))
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	pwd, _ := os.Getwd()
	client := getter.Client{
		Ctx:  ctx,
		Src:  src,
		Dst:  dst,
		Pwd:  pwd,
		Mode: getter.ClientModeFile,
	}

	log.Info().Str("src", src).Str("dst", dst).Msg("Downloading registry")
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("failed to download registry from %s: %w", src, err)
	}
	return dst, nil
}

// registryExt keeps the extension of the remote file so LoadRegistry can pick the format
func registryExt(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ".toml"
	}
	if ext := path.Ext(u.Path); ext == ".json" {
		return ext
	}
	return ".toml"
}
