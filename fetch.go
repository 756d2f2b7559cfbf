package harmonica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sony/gobreaker"
)

// Fetcher opens a byte stream for a remote URL.
type Fetcher interface {
	// Fetch returns the body of url and its size, or -1 if unknown.
	// The caller must close the body.
	Fetch(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// remoteFetcher serves http, https and anonymous ftp URLs. Every fetch goes
// through one circuit breaker so an unreachable host fails fast; nothing is
// retried.
type remoteFetcher struct {
	// httpClient is used for http and https URLs.
	httpClient HTTPClient

	// dialTimeout bounds FTP connection setup.
	dialTimeout time.Duration

	// breaker trips after BreakerFailures consecutive failures.
	breaker *gobreaker.CircuitBreaker

	// logger receives diagnostic messages. May be nil.
	logger Logger
}

var _ Fetcher = (*remoteFetcher)(nil)

// newRemoteFetcher creates a fetcher using client for HTTP.
func newRemoteFetcher(client HTTPClient, logger Logger) *remoteFetcher {
	f := &remoteFetcher{
		httpClient:  client,
		dialTimeout: DefaultDialTimeout,
		logger:      logger,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "harmonica-fetch",
		Timeout: BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if f.logger != nil {
				f.logger.Warn("fetch breaker state changed", "from", from.String(), "to", to.String())
			}
		},
	})
	return f
}

// Fetch opens rawURL. Failures wrap ErrRetrieval.
func (f *remoteFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid url %q: %v", ErrRetrieval, rawURL, err)
	}

	result, err := f.breaker.Execute(func() (interface{}, error) {
		switch u.Scheme {
		case "http", "https":
			return f.fetchHTTP(ctx, u)
		case "ftp":
			return f.fetchFTP(ctx, u)
		default:
			return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, 0, fmt.Errorf("%w: %s: too many recent failures: %v", ErrRetrieval, rawURL, err)
		}
		return nil, 0, fmt.Errorf("%w: %s: %v", ErrRetrieval, rawURL, err)
	}

	body, ok := result.(*remoteBody)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unexpected result type from circuit breaker", ErrRetrieval)
	}
	return body, body.size, nil
}

func (f *remoteFetcher) fetchHTTP(ctx context.Context, u *url.URL) (*remoteBody, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	return &remoteBody{ReadCloser: resp.Body, size: resp.ContentLength}, nil
}

func (f *remoteFetcher) fetchFTP(ctx context.Context, u *url.URL) (*remoteBody, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	session := newFTPSession(ctx, f.dialTimeout)
	conn, err := ftp.Dial(addr, ftp.DialWithDialFunc(session.dial))
	if err != nil {
		session.stop()
		return nil, err
	}
	quit := func() error {
		session.stop()
		return conn.Quit()
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		quit()
		return nil, fmt.Errorf("login: %w", err)
	}

	size, err := conn.FileSize(u.Path)
	if err != nil {
		size = -1
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		quit()
		return nil, fmt.Errorf("retr %s: %w", u.Path, err)
	}

	return &remoteBody{ReadCloser: resp, size: size, release: quit}, nil
}

// ftpSession dials the control and data connections of one FTP fetch and
// expires all of them when its context ends. jlaffaye/ftp only honours a
// context while dialing the control connection.
type ftpSession struct {
	ctx    context.Context
	dialer net.Dialer
	stop   func() bool

	mu      sync.Mutex
	conns   []net.Conn
	expired bool
}

func newFTPSession(ctx context.Context, dialTimeout time.Duration) *ftpSession {
	s := &ftpSession{ctx: ctx, dialer: net.Dialer{Timeout: dialTimeout}}
	s.stop = context.AfterFunc(ctx, s.expire)
	return s
}

// dial is an ftp.DialWithDialFunc hook.
func (s *ftpSession) dial(network, address string) (net.Conn, error) {
	conn, err := s.dialer.DialContext(s.ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := s.ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expired {
		conn.SetDeadline(time.Now())
	}
	s.conns = append(s.conns, conn)
	return conn, nil
}

// expire unblocks every pending read and write of the session.
func (s *ftpSession) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
	for _, conn := range s.conns {
		conn.SetDeadline(time.Now())
	}
}

// remoteBody is a fetched stream plus whatever connection must be released
// after it.
type remoteBody struct {
	io.ReadCloser
	size    int64
	release func() error
}

func (b *remoteBody) Close() error {
	err := b.ReadCloser.Close()
	if b.release != nil {
		if rerr := b.release(); err == nil {
			err = rerr
		}
	}
	return err
}

// progressReader wraps a remote body, reports bytes as they are read and marks
// transfer failures as retrieval errors.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: reading remote body: %v", ErrRetrieval, err)
	}
	return
}
