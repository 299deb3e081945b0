package utils

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decodingTransport transparently decodes gzip and deflate response bodies.
// The decoder is created on first read so HEAD and empty 3xx responses carrying
// a Content-Encoding header never fail.
type decodingTransport struct {
	base http.RoundTripper
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || req.Method == http.MethodHead {
		return resp, err
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip", "deflate":
	default:
		return resp, nil
	}

	resp.Body = &decodedBody{body: resp.Body, encoding: encoding}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type decodedBody struct {
	body     io.ReadCloser
	encoding string
	reader   io.Reader
	err      error
}

func (d *decodedBody) Read(p []byte) (int, error) {
	if d.reader == nil && d.err == nil {
		d.reader, d.err = newDecoder(d.encoding, d.body)
	}
	if d.err != nil {
		return 0, d.err
	}
	return d.reader.Read(p)
}

func (d *decodedBody) Close() error {
	if closer, ok := d.reader.(io.Closer); ok && d.err == nil {
		closer.Close()
	}
	return d.body.Close()
}

func newDecoder(encoding string, body io.Reader) (io.Reader, error) {
	if encoding != "deflate" {
		return gzip.NewReader(body)
	}

	// "deflate" is zlib-wrapped per RFC 9110 but some servers send raw DEFLATE
	buffered := bufio.NewReader(body)
	header, err := buffered.Peek(2)
	if err != nil {
		return nil, err
	}
	if isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(buffered)
	}
	return flate.NewReader(buffered), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
