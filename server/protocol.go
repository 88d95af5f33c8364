package server

import (
	"io"
	"net"

	"github.com/pkg/errors"
	"github.com/t7a/trueledger/ledger"
	"github.com/vmihailenco/msgpack"
)

// request ops
const (
	OpVerify = "verify"
	OpPut    = "put"
	OpGet    = "get"
)

// Request is one msgpack message from client to server.
type Request struct {
	Op    string                    `msgpack:"op"`
	Tx    *ledger.SignedTransaction `msgpack:"tx,omitempty"`
	Path  string                    `msgpack:"path,omitempty"` // canpath, for get
	Label string                    `msgpack:"label,omitempty"`
}

// Response answers one Request.  Check names the verification stage
// that failed, if any; Err is empty on success.
type Response struct {
	OK    bool                      `msgpack:"ok"`
	Check string                    `msgpack:"check,omitempty"`
	Err   string                    `msgpack:"err,omitempty"`
	Path  string                    `msgpack:"path,omitempty"`
	Tx    *ledger.SignedTransaction `msgpack:"tx,omitempty"`
}

func (res *Response) fill(err error) {
	res.OK = err == nil
	if err != nil {
		res.Check = string(ledger.FailedCheck(err))
		res.Err = err.Error()
	}
}

// Error returns the failure carried by res, or nil.
func (res *Response) Error() error {
	if res.OK {
		return nil
	}
	if res.Check != "" {
		return errors.Errorf("%s check failed: %s", res.Check, res.Err)
	}
	return errors.New(res.Err)
}

type codec struct {
	enc *msgpack.Encoder
	dec *msgpack.Decoder
}

func newCodec(rw io.ReadWriter) *codec {
	return &codec{enc: msgpack.NewEncoder(rw), dec: msgpack.NewDecoder(rw)}
}

// Client talks to a Server over a UNIX domain socket.  A Client is
// not safe for concurrent use; open one per goroutine.
type Client struct {
	conn net.Conn
	*codec
}

// Dial connects to the server socket at fn.
func Dial(fn string) (client *Client, err error) {
	conn, err := net.Dial("unix", fn)
	if err != nil {
		return
	}
	return &Client{conn: conn, codec: newCodec(conn)}, nil
}

func (client *Client) Close() error {
	return client.conn.Close()
}

// Call sends req and waits for the response.
func (client *Client) Call(req *Request) (res *Response, err error) {
	err = client.enc.Encode(req)
	if err != nil {
		return
	}
	res = &Response{}
	err = client.dec.Decode(res)
	if err != nil {
		return nil, err
	}
	return
}

func (client *Client) Verify(stx *ledger.SignedTransaction) (*Response, error) {
	return client.Call(&Request{Op: OpVerify, Tx: stx})
}

// Put asks the server to verify and store stx, linking label to it
// when label is not empty.
func (client *Client) Put(stx *ledger.SignedTransaction, label string) (*Response, error) {
	return client.Call(&Request{Op: OpPut, Tx: stx, Label: label})
}

func (client *Client) Get(canpath string) (*Response, error) {
	return client.Call(&Request{Op: OpGet, Path: canpath})
}

func (client *Client) GetLabel(label string) (*Response, error) {
	return client.Call(&Request{Op: OpGet, Label: label})
}
