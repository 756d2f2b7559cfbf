package harmonica

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/klauspost/compress/gzip"
)

// Compression magic numbers.
var (
	gzipMagic     = [2]byte{0x1f, 0x8b}
	compressMagic = [2]byte{0x1f, 0x9d}
)

// decompress wraps r with the decoder matching the archive kind.
// ArchiveCompressTar sniffs the payload: the tpxo7 ".tar.Z" distribution is
// gzip-compressed despite its suffix.
func decompress(kind ArchiveKind, r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(r, 64<<10)

	switch kind {
	case ArchiveGzipTar:
		return openGzip(br)
	case ArchiveCompressTar:
		head, err := br.Peek(2)
		if err != nil {
			return nil, fmt.Errorf("reading compression header: %w", err)
		}
		switch [2]byte{head[0], head[1]} {
		case gzipMagic:
			return openGzip(br)
		case compressMagic:
			zr, err := newCompressReader(br)
			if err != nil {
				return nil, err
			}
			return io.NopCloser(zr), nil
		default:
			return nil, fmt.Errorf("unrecognized compression header %x", head)
		}
	default:
		return nil, fmt.Errorf("model resources are not archived")
	}
}

func openGzip(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading gzip header: %w", err)
	}
	return zr, nil
}

// extractMembers walks a tar stream and hands every regular member whose
// cleaned name is in wanted to write. Other members are skipped without
// being written. It returns the names written and stops reading once every
// wanted member was seen.
func extractMembers(r io.Reader, wanted map[string]bool, write func(name string, r io.Reader) error) ([]string, error) {
	tr := tar.NewReader(r)
	var written []string
	done := make(map[string]bool)
	for len(written) < len(wanted) {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("%w: reading archive: %v", ErrRetrieval, err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}

		name := path.Clean(hdr.Name)
		if !wanted[name] || done[name] {
			continue
		}
		if err := write(name, tr); err != nil {
			if errors.Is(err, ErrStorage) || errors.Is(err, ErrRetrieval) {
				return written, err
			}
			return written, fmt.Errorf("%w: extracting %s: %v", ErrRetrieval, name, err)
		}
		done[name] = true
		written = append(written, name)
	}
	return written, nil
}

// Unix compress(1) parameters.
const (
	compressInitBits  = 9
	compressMaxBits   = 16
	compressBitsMask  = 0x1f
	compressBlockMode = 0x80
	compressClear     = 256
)

var errCorruptCompress = errors.New("corrupt compress stream")

// compressReader decodes the LZW variant written by compress(1).
// Codes are packed LSB first in groups of nBits bytes; the remainder of a
// group is discarded whenever the code width changes or the table is cleared.
type compressReader struct {
	r io.Reader

	maxBits    uint
	blockMode  bool
	maxMaxCode int

	nBits   uint
	maxCode int
	freeEnt int

	prefix []uint16
	suffix []byte

	oldCode int
	finChar byte

	group   []byte
	groupN  int // valid bytes in group
	bitPos  int
	stack   []byte
	pending []byte
	err     error
}

func newCompressReader(r io.Reader) (*compressReader, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("reading compress header: %w", err)
	}
	if hdr[0] != compressMagic[0] || hdr[1] != compressMagic[1] {
		return nil, fmt.Errorf("not a compress stream")
	}

	maxBits := uint(hdr[2] & compressBitsMask)
	if maxBits < compressInitBits || maxBits > compressMaxBits {
		return nil, fmt.Errorf("unsupported compress code width %d", maxBits)
	}

	z := &compressReader{
		r:          r,
		maxBits:    maxBits,
		blockMode:  hdr[2]&compressBlockMode != 0,
		maxMaxCode: 1 << maxBits,
		prefix:     make([]uint16, 1<<maxBits),
		suffix:     make([]byte, 1<<maxBits),
		group:      make([]byte, compressMaxBits),
		oldCode:    -1,
	}
	for i := 0; i < 256; i++ {
		z.suffix[i] = byte(i)
	}
	z.setWidth(compressInitBits)
	z.freeEnt = 256
	if z.blockMode {
		z.freeEnt = compressClear + 1
	}
	return z, nil
}

func (z *compressReader) setWidth(n uint) {
	z.nBits = n
	if n == z.maxBits {
		z.maxCode = z.maxMaxCode
	} else {
		z.maxCode = 1<<n - 1
	}
	// drop the rest of the current group
	z.bitPos = z.groupN * 8
}

// readCode returns the next code of the current width, or io.EOF.
func (z *compressReader) readCode() (int, error) {
	if z.bitPos+int(z.nBits) > z.groupN*8 {
		n, err := io.ReadFull(z.r, z.group[:z.nBits])
		if err == io.ErrUnexpectedEOF {
			err = nil
		}
		if err != nil {
			return 0, err
		}
		z.groupN = n
		z.bitPos = 0
		if int(z.nBits) > n*8 {
			return 0, io.EOF
		}
	}

	var window uint32
	first := z.bitPos >> 3
	for i := 0; i < 3 && first+i < z.groupN; i++ {
		window |= uint32(z.group[first+i]) << (8 * i)
	}
	code := int(window>>(z.bitPos&7)) & (1<<z.nBits - 1)
	z.bitPos += int(z.nBits)
	return code, nil
}

// step decodes one code into z.pending.
func (z *compressReader) step() error {
	if z.freeEnt > z.maxCode {
		z.setWidth(z.nBits + 1)
	}

	code, err := z.readCode()
	if err != nil {
		return err
	}

	if z.oldCode == -1 {
		if code >= 256 {
			return errCorruptCompress
		}
		z.oldCode = code
		z.finChar = byte(code)
		z.pending = append(z.pending, z.finChar)
		return nil
	}

	if code == compressClear && z.blockMode {
		z.freeEnt = compressClear
		z.setWidth(compressInitBits)
		return nil
	}

	inCode := code
	z.stack = z.stack[:0]
	if code >= z.freeEnt {
		if code > z.freeEnt {
			return errCorruptCompress
		}
		z.stack = append(z.stack, z.finChar)
		code = z.oldCode
	}
	for code >= 256 {
		z.stack = append(z.stack, z.suffix[code])
		code = int(z.prefix[code])
	}
	z.finChar = z.suffix[code]
	z.stack = append(z.stack, z.finChar)
	for i := len(z.stack) - 1; i >= 0; i-- {
		z.pending = append(z.pending, z.stack[i])
	}

	if z.freeEnt < z.maxMaxCode {
		z.prefix[z.freeEnt] = uint16(z.oldCode)
		z.suffix[z.freeEnt] = z.finChar
		z.freeEnt++
	}
	z.oldCode = inCode
	return nil
}

func (z *compressReader) Read(p []byte) (int, error) {
	for len(z.pending) == 0 {
		if z.err != nil {
			return 0, z.err
		}
		z.err = z.step()
	}
	n := copy(p, z.pending)
	z.pending = z.pending[n:]
	return n, nil
}
