package harmonica

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRemoteFetcherHTTP(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Path {
		case "/atlas/hf.m2.nc":
			w.Header().Set("Content-Length", "5")
			w.Write([]byte("m2m2m"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	f := newRemoteFetcher(server.Client(), nil)

	t.Run("ok", func(t *testing.T) {
		body, size, err := f.Fetch(context.Background(), server.URL+"/atlas/hf.m2.nc")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer body.Close()

		data, _ := io.ReadAll(body)
		if string(data) != "m2m2m" {
			t.Errorf("body = %q, want %q", data, "m2m2m")
		}
		if size != 5 {
			t.Errorf("size = %d, want 5", size)
		}
	})

	t.Run("not found wraps ErrRetrieval", func(t *testing.T) {
		_, _, err := f.Fetch(context.Background(), server.URL+"/atlas/missing.nc")
		if !errors.Is(err, ErrRetrieval) {
			t.Errorf("Fetch() error = %v, want ErrRetrieval", err)
		}
		if err != nil && !strings.Contains(err.Error(), "404") {
			t.Errorf("Fetch() error = %v, want status code in message", err)
		}
	})
}

func TestRemoteFetcherUnsupportedScheme(t *testing.T) {
	f := newRemoteFetcher(http.DefaultClient, nil)

	_, _, err := f.Fetch(context.Background(), "gopher://example.com/atlas")
	if !errors.Is(err, ErrRetrieval) {
		t.Errorf("Fetch() error = %v, want ErrRetrieval", err)
	}
}

func TestRemoteFetcherBreaker(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newRemoteFetcher(server.Client(), nil)
	for i := 0; i < BreakerFailures; i++ {
		if _, _, err := f.Fetch(context.Background(), server.URL); !errors.Is(err, ErrRetrieval) {
			t.Fatalf("Fetch() #%d error = %v, want ErrRetrieval", i, err)
		}
	}

	_, _, err := f.Fetch(context.Background(), server.URL)
	if !errors.Is(err, ErrRetrieval) {
		t.Errorf("Fetch() with open breaker error = %v, want ErrRetrieval", err)
	}
	if got := requests.Load(); got != BreakerFailures {
		t.Errorf("server saw %d requests, want %d (open breaker must not reach the server)", got, BreakerFailures)
	}
}

func TestRemoteFetcherNoRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newRemoteFetcher(server.Client(), nil)
	if _, _, err := f.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("Fetch() expected error")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestRemoteFetcherCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newRemoteFetcher(server.Client(), nil)
	if _, _, err := f.Fetch(ctx, server.URL); !errors.Is(err, ErrRetrieval) {
		t.Errorf("Fetch() with canceled context error = %v, want ErrRetrieval", err)
	}
}

func TestRemoteFetcherFTP(t *testing.T) {
	const prefix = "tpxo"

	// readAll reads body to the end in the background and fails the test if
	// the read outlives the wait.
	readAll := func(t *testing.T, body io.Reader) ([]byte, error) {
		t.Helper()
		type result struct {
			data []byte
			err  error
		}
		done := make(chan result, 1)
		go func() {
			data, err := io.ReadAll(body)
			done <- result{data, err}
		}()
		select {
		case r := <-done:
			return r.data, r.err
		case <-time.After(10 * time.Second):
			t.Fatal("read blocked after the context ended")
			return nil, nil
		}
	}

	t.Run("deadline ends stalled transfer", func(t *testing.T) {
		addr := newStallingFTPServer(t, prefix)
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		f := newRemoteFetcher(http.DefaultClient, nil)
		body, size, err := f.Fetch(ctx, "ftp://"+addr+"/tpxo9.tar.gz")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer body.Close()
		if size != 2*int64(len(prefix)) {
			t.Errorf("size = %d, want %d", size, 2*len(prefix))
		}

		data, err := readAll(t, body)
		if err == nil {
			t.Fatal("ReadAll() expected error from a stalled transfer")
		}
		if string(data) != prefix {
			t.Errorf("read %q before the deadline, want %q", data, prefix)
		}
	})

	t.Run("cancel ends stalled transfer", func(t *testing.T) {
		addr := newStallingFTPServer(t, prefix)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		f := newRemoteFetcher(http.DefaultClient, nil)
		body, _, err := f.Fetch(ctx, "ftp://"+addr+"/tpxo9.tar.gz")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		defer body.Close()

		head := make([]byte, len(prefix))
		if _, err := io.ReadFull(body, head); err != nil {
			t.Fatalf("reading first bytes: %v", err)
		}
		cancel()

		if _, err := readAll(t, body); err == nil {
			t.Fatal("ReadAll() expected error after cancel")
		}
	})
}

// newStallingFTPServer serves one anonymous FTP session whose RETR sends
// prefix and then holds the data connection open without sending more.
func newStallingFTPServer(t *testing.T, prefix string) string {
	t.Helper()
	ctrl, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	data, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		ctrl.Close()
		t.Fatal(err)
	}
	hold := make(chan struct{})
	t.Cleanup(func() {
		close(hold)
		ctrl.Close()
		data.Close()
	})

	go func() {
		conn, err := ctrl.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", line) }

		reply("220 ready")
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			cmd, _, _ := strings.Cut(scanner.Text(), " ")
			switch strings.ToUpper(cmd) {
			case "USER":
				reply("331 password required")
			case "PASS":
				reply("230 logged in")
			case "TYPE":
				reply("200 type set")
			case "SIZE":
				reply(fmt.Sprintf("213 %d", 2*len(prefix)))
			case "EPSV":
				reply(fmt.Sprintf("229 Entering Extended Passive Mode (|||%d|)", data.Addr().(*net.TCPAddr).Port))
			case "RETR":
				dc, err := data.Accept()
				if err != nil {
					return
				}
				reply("150 opening data connection")
				dc.Write([]byte(prefix))
				go func() {
					<-hold
					dc.Close()
				}()
			case "QUIT":
				reply("221 bye")
				return
			default:
				reply("502 not implemented")
			}
		}
	}()
	return ctrl.Addr().String()
}

func TestProgressReader(t *testing.T) {
	var total int64
	pr := &progressReader{
		reader:     strings.NewReader("0123456789"),
		onProgress: func(delta int64) { total += delta },
	}

	data, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(data) != 10 || total != 10 {
		t.Errorf("read %d bytes, reported %d, want 10 both", len(data), total)
	}

	t.Run("read failure wraps ErrRetrieval", func(t *testing.T) {
		pr := &progressReader{reader: failingReader{}}
		_, err := pr.Read(make([]byte, 4))
		if !errors.Is(err, ErrRetrieval) {
			t.Errorf("Read() error = %v, want ErrRetrieval", err)
		}
	})
}

func TestRemoteBodyClose(t *testing.T) {
	released := false
	body := &remoteBody{
		ReadCloser: io.NopCloser(strings.NewReader("")),
		release:    func() error { released = true; return nil },
	}
	if err := body.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if !released {
		t.Error("Close() did not release the connection")
	}
}
