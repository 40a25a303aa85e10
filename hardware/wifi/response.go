package wifi

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/juju/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.Config{UseNumber: true}.Froze()

// Response is HTTP response, either fully buffered or streamed.
// Streamed body is consumed by Chunks, buffered methods read it whole.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64 // -1 when unknown

	body   io.ReadCloser
	buf    []byte
	loaded bool
}

func newHTTPResponse(r *http.Response) *Response {
	return &Response{
		StatusCode:    r.StatusCode,
		Header:        r.Header,
		ContentLength: r.ContentLength,
		body:          r.Body,
	}
}

// NewLocalResponse reads file as if it came from network.
func NewLocalResponse(path string) (*Response, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "local response %s", path)
	}
	return NewBytesResponse(b), nil
}

func NewBytesResponse(b []byte) *Response {
	return &Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{"Content-Length": []string{strconv.Itoa(len(b))}},
		ContentLength: int64(len(b)),
		buf:           b,
		loaded:        true,
	}
}

func (self *Response) Bytes() ([]byte, error) {
	if self.loaded {
		return self.buf, nil
	}
	if self.body == nil {
		return nil, errors.New("response body already released")
	}
	b, err := ioutil.ReadAll(self.body)
	self.body.Close()
	self.body = nil
	if err != nil {
		return nil, errors.Annotate(err, "response read")
	}
	self.buf, self.loaded = b, true
	return b, nil
}

func (self *Response) Text() (string, error) {
	b, err := self.Bytes()
	return string(b), err
}

// JSON decodes body, numbers are kept as json.Number.
func (self *Response) JSON() (interface{}, error) {
	b, err := self.Bytes()
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Annotate(err, "response json")
	}
	return doc, nil
}

// Chunks returns lazy iterator over body in pieces of at most size bytes.
func (self *Response) Chunks(size int) *ChunkReader {
	var r io.Reader
	if self.loaded {
		r = bytes.NewReader(self.buf)
	} else if self.body != nil {
		r = self.body
	}
	return &ChunkReader{r: r, buf: make([]byte, size)}
}

// Close releases connection, buffered content stays available.
func (self *Response) Close() error {
	if self.body == nil {
		return nil
	}
	err := self.body.Close()
	self.body = nil
	return err
}

type ChunkReader struct {
	r   io.Reader
	buf []byte
	err error
}

// Next returns following chunk, io.EOF at end of body.
// Chunk is valid until next call. Limit caps this chunk below buffer size, 0 = no cap.
func (self *ChunkReader) Next(limit int) ([]byte, error) {
	if self.err != nil {
		return nil, self.err
	}
	if self.r == nil {
		self.err = io.EOF
		return nil, self.err
	}
	b := self.buf
	if limit > 0 && limit < len(b) {
		b = b[:limit]
	}
	n, err := io.ReadFull(self.r, b)
	switch err {
	case nil:
	case io.ErrUnexpectedEOF, io.EOF:
		self.err = io.EOF
		if n == 0 {
			return nil, io.EOF
		}
	default:
		self.err = errors.Annotate(err, "response chunk")
		return nil, self.err
	}
	return b[:n], nil
}
