package harmonica

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// remoteURL returns the location of a resource, honoring Config.Mirrors.
// Archived models fetch the archive itself.
func (r *ResourceManager) remoteURL(resource string) string {
	base := r.model.URL
	if mirror, ok := r.cfg.Mirrors[r.model.Name]; ok && mirror != "" {
		base = mirror
	}
	if r.model.Archive != ArchiveNone {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + path.Clean(resource)
}

// Download fetches resource into destDir. For archived models the remote
// archive is streamed and every member matching a declared resource path is
// extracted; the call fails if resource itself is not among them. Failures
// to reach the endpoint or parse the archive wrap ErrRetrieval and are not
// retried. Files written before a failure are kept.
func (r *ResourceManager) Download(ctx context.Context, resource, destDir string) error {
	r.downloadMu.Lock()
	defer r.downloadMu.Unlock()

	// Acquire cross-process lock for this model
	lock, err := r.storage.lockModel(r.model.Name)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	dest := filepath.Join(destDir, filepath.FromSlash(resource))
	if r.storage.exists(dest) {
		// another process finished it while we waited
		return nil
	}

	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	url := r.remoteURL(resource)
	if r.logger != nil {
		r.logger.Info("downloading resource", "model", r.model.Name, "resource", resource, "url", url)
	}

	err = r.fetchInto(ctx, url, func(body io.Reader) error {
		if r.model.Archive == ArchiveNone {
			_, err := r.storage.writeStream(dest, body)
			return err
		}
		return r.extractArchive(body, resource, destDir)
	})
	observeFetch(r.model.Name, err)
	if err != nil && r.logger != nil {
		r.logger.Error("download failed", "model", r.model.Name, "resource", resource, "error", err)
	}
	return err
}

// fetchInto opens url and hands the progress-tracked body to consume.
func (r *ResourceManager) fetchInto(ctx context.Context, url string, consume func(io.Reader) error) error {
	body, size, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()

	var completed int64
	bytes := fetchBytesTotal.WithLabelValues(r.model.Name)
	pr := &progressReader{
		reader: body,
		onProgress: func(delta int64) {
			completed += delta
			bytes.Add(float64(delta))
			if r.progressFn != nil {
				r.progressFn(DownloadProgress{
					Model:          r.model.Name,
					URL:            url,
					BytesCompleted: completed,
					BytesTotal:     size,
				})
			}
		},
	}

	if err := consume(pr); err != nil {
		return err
	}
	if r.progressFn != nil {
		r.progressFn(DownloadProgress{
			Model:          r.model.Name,
			URL:            url,
			BytesCompleted: completed,
			BytesTotal:     size,
			Done:           true,
		})
	}
	return nil
}

// extractArchive writes every declared resource found in the archive under
// destDir.
func (r *ResourceManager) extractArchive(body io.Reader, resource, destDir string) error {
	zr, err := decompress(r.model.Archive, body)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRetrieval, r.model.Name, err)
	}
	defer zr.Close()

	wanted := make(map[string]bool)
	for _, res := range r.model.Resources() {
		wanted[path.Clean(res)] = true
	}

	found, err := extractMembers(zr, wanted, func(name string, member io.Reader) error {
		dest := filepath.Join(destDir, filepath.FromSlash(name))
		n, err := r.storage.writeStream(dest, member)
		if err == nil && r.logger != nil {
			r.logger.Debug("extracted resource", "model", r.model.Name, "member", name, "bytes", n)
		}
		return err
	})
	if err != nil {
		return err
	}

	for _, f := range found {
		if f == path.Clean(resource) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s archive has no member %s", ErrRetrieval, r.model.Name, resource)
}
