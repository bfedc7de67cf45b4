package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/alitto/pond/v2"
	"github.com/cavaliergopher/grab/v3"
)

// Request is one archive to fetch: a registry tarball, a compat-registry
// tarball, or any other URL a source needs fetched to a scratch path before
// it can be unpacked into the CAS.
type Request struct {
	URL         string
	Destination string // scratch file path; caller owns cleanup
	Checksum    string // optional hex-encoded SHA256
	Headers     map[string]string
}

// FetchResult is the outcome of one Request.
type FetchResult struct {
	*Request
	Size int64
}

func (r *FetchResult) Destination() string { return r.Request.Destination }

// Downloader fans HTTP fetches for resolved package archives out across a
// bounded worker pool, deduplicating concurrent requests for the same
// destination the way a shared registry index inevitably produces (several
// graph nodes pointing at the same tarball).
type Downloader struct {
	pool   pond.ResultPool[Result]
	client *grab.Client

	inflight sync.Map // map[string]*waiter
}

type waiter struct {
	done     chan struct{}
	result   *FetchResult
	err      error
	url      string
	checksum string
}

// New builds a Downloader bounded to maxParallel concurrent fetches.
func New(ctx context.Context, httpClient *http.Client, maxParallel int) *Downloader {
	pool := pond.NewResultPool[Result](maxParallel, pond.WithContext(ctx), pond.WithoutPanicRecovery())
	return &Downloader{
		pool:   pool,
		client: &grab.Client{HTTPClient: httpClient},
	}
}

// Shutdown stops the pool, waiting for in-flight fetches to finish.
func (d *Downloader) Shutdown() {
	d.pool.StopAndWait()
}

// Fetch submits one or more requests and returns a task group to wait on.
func (d *Downloader) Fetch(ctx context.Context, requests ...*Request) pond.ResultTaskGroup[Result] {
	group := d.pool.NewGroupContext(ctx)
	for _, req := range requests {
		req := req
		group.SubmitErr(func() (Result, error) {
			return d.fetchWithDedup(ctx, req)
		})
	}
	return group
}

func (d *Downloader) fetchWithDedup(ctx context.Context, req *Request) (*FetchResult, error) {
	w := &waiter{done: make(chan struct{}), url: req.URL, checksum: req.Checksum}

	actual, loaded := d.inflight.LoadOrStore(req.Destination, w)
	if loaded {
		existing := actual.(*waiter)
		if req.Checksum != "" && existing.checksum != "" && req.Checksum != existing.checksum {
			return nil, fmt.Errorf("checksum conflict for %s", req.Destination)
		}
		<-existing.done
		return existing.result, existing.err
	}
	defer d.inflight.Delete(req.Destination)

	result, err := d.fetch(ctx, req)
	w.result, w.err = result, err
	close(w.done)
	return result, err
}

func (d *Downloader) fetch(ctx context.Context, req *Request) (*FetchResult, error) {
	grabReq, err := grab.NewRequest(req.Destination, req.URL)
	if err != nil {
		return nil, err
	}
	grabReq = grabReq.WithContext(ctx)

	for k, v := range req.Headers {
		grabReq.HTTPRequest.Header.Set(k, v)
	}

	if req.Checksum != "" {
		sum, err := hex.DecodeString(req.Checksum)
		if err != nil {
			return nil, fmt.Errorf("invalid checksum %q: %w", req.Checksum, err)
		}
		grabReq.SetChecksum(sha256.New(), sum, true)
	}

	resp := d.client.Do(grabReq)
	<-resp.Done
	if resp.Err() != nil {
		return nil, fmt.Errorf("fetching %s: %w", req.URL, resp.Err())
	}

	slog.Debug("fetched package archive", "url", req.URL, "bytes", resp.Size())

	return &FetchResult{Request: req, Size: resp.Size()}, nil
}
