package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/trueledger/db"
	"github.com/t7a/trueledger/ledger"
)

// InboxDir is where producers drop envelopes for Watch to pick up.
const InboxDir = "inbox"

// Server verifies signed transactions and keeps the valid ones in a
// db.  It takes requests on UNIX domain sockets and files dropped into
// its inbox.
type Server struct {
	Dir  string
	Db   *db.Db
	Algo string // hash algorithm for stored transactions
	// OnIngest, if set, is called by Watch after each inbox file is
	// handled.
	OnIngest func(fn string, res *Response)
	// Feed, if set, gets a receipt for every handled request and
	// inbox file.
	Feed    *Hub
	watcher *fsnotify.Watcher
}

// Create initializes a store in dir and opens it.
func Create(dir string) (srv *Server, err error) {
	defer Return(&err)

	_, err = db.Db{Dir: dir}.Create()
	Ck(err)

	err = os.Mkdir(filepath.Join(dir, InboxDir), 0755)
	Ck(err)

	return Open(dir)
}

// Open loads the store in dir and starts watching its inbox.
func Open(dir string) (srv *Server, err error) {
	defer Return(&err)

	srv = &Server{Dir: filepath.Clean(dir), Algo: "sha256"}

	srv.Db, err = db.Open(dir)
	Ck(err)

	inbox := filepath.Join(srv.Dir, InboxDir)
	if _, err := os.Stat(inbox); os.IsNotExist(err) {
		err = os.Mkdir(inbox, 0755)
		Ck(err)
	}

	srv.watcher, err = fsnotify.NewWatcher()
	Ck(err)
	err = srv.watcher.Add(inbox)
	Ck(err)

	return srv, nil
}

// Close stops the inbox watcher.
func (srv *Server) Close() error {
	return srv.watcher.Close()
}

func (srv *Server) sockPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(srv.Dir, name)
}

// Listen on a new UNIX domain socket.  A relative name is taken
// relative to the server dir.
// https://eli.thegreenplace.net/2019/unix-domain-sockets-in-go/
func (srv *Server) Listen(name string) (listener net.Listener, err error) {
	return net.Listen("unix", srv.sockPath(name))
}

// Connect to an existing UNIX domain socket.
func (srv *Server) Connect(name string) (client *Client, err error) {
	return Dial(srv.sockPath(name))
}

// Serve accepts connections on listener until it is closed, handling
// each connection in its own goroutine.
func (srv *Server) Serve(listener net.Listener) (err error) {
	for {
		// accept connection from client
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		go srv.handle(conn)
	}
}

// handle a single connection from a client; a stream of requests,
// each answered in order
func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()
	codec := newCodec(conn)
	for {
		req := &Request{}
		err := codec.dec.Decode(req)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Warnf("%v: bad request: %v", conn.RemoteAddr(), err)
			return
		}
		res := srv.Do(req)
		srv.publish("socket", req.Op, res)
		err = codec.enc.Encode(res)
		if err != nil {
			log.Warnf("%v: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// Do carries out one request.  Failures are reported in the response,
// never as a Go error, so a client always gets an answer.
func (srv *Server) Do(req *Request) (res *Response) {
	res = &Response{}
	var err error
	switch req.Op {
	case OpVerify:
		err = srv.verify(req.Tx)
	case OpPut:
		var path *db.Path
		path, err = srv.put(req.Tx, req.Label)
		if path != nil {
			res.Path = path.Canon
		}
	case OpGet:
		var path *db.Path
		path, res.Tx, err = srv.get(req.Path, req.Label)
		if path != nil {
			res.Path = path.Canon
		}
	default:
		err = fmt.Errorf("unknown op: %q", req.Op)
	}
	res.fill(err)
	log.Debugf("%s %s: %v", req.Op, res.Path, err)
	return
}

func (srv *Server) verify(stx *ledger.SignedTransaction) error {
	if stx == nil {
		return errors.New("missing transaction")
	}
	return ledger.Verify(stx)
}

// put verifies stx and stores it, optionally under label.  Nothing is
// stored when verification fails.
func (srv *Server) put(stx *ledger.SignedTransaction, label string) (path *db.Path, err error) {
	err = srv.verify(stx)
	if err != nil {
		return
	}
	path, err = srv.Db.PutTx(srv.Algo, stx)
	if err != nil {
		return
	}
	if label != "" {
		_, err = srv.Db.Link(path, label)
	}
	return
}

func (srv *Server) get(canpath, label string) (path *db.Path, stx *ledger.SignedTransaction, err error) {
	switch {
	case label != "":
		path, err = srv.Db.OpenLabel(label)
	case canpath != "":
		path, err = db.Path{}.New(srv.Db, canpath)
	default:
		err = errors.New("get needs a path or a label")
	}
	if err != nil {
		return
	}
	stx, err = srv.Db.GetTx(path)
	return
}

func (srv *Server) publish(source, op string, res *Response) {
	if srv.Feed != nil {
		srv.Feed.Publish(newReceipt(source, op, res))
	}
}

// Ingest verifies and stores the envelope in fn, removing it from
// the inbox once it is stored.  A file that fails verification is
// renamed with a .rejected suffix so it is not picked up again.  A
// file that doesn't parse is left alone; it may still be being
// written.
func (srv *Server) Ingest(fn string) (res *Response) {
	res, _ = srv.ingest(fn)
	return
}

func (srv *Server) ingest(fn string) (res *Response, err error) {
	res = &Response{}
	stx, err := ledger.ReadFile(fn)
	if err != nil {
		res.fill(err)
		return
	}
	path, err := srv.put(stx, "")
	res.fill(err)
	if err == nil {
		res.Path = path.Canon
		log.Infof("ingested %s as %s", fn, path.Canon)
		rmerr := os.Remove(fn)
		if rmerr != nil {
			log.Warn(rmerr)
		}
		return
	}
	if res.Check != "" {
		log.Warnf("rejected %s: %v", fn, err)
		mverr := os.Rename(fn, fn+".rejected")
		if mverr != nil {
			log.Warn(mverr)
		}
	}
	return
}

// settling reports whether err came from an inbox file that is gone
// or still being written.  A plain write fires more than one event
// for the same file, and only one of them can ingest it.
func settling(fn string, err error) bool {
	var nf *ledger.NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var corrupt *ledger.CorruptError
	if errors.As(err, &corrupt) {
		_, staterr := os.Stat(fn)
		return staterr == nil
	}
	return false
}

// Watch ingests each *.json file created or written in the inbox
// until ctx is done or the server is closed.
func (srv *Server) Watch(ctx context.Context) (err error) {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-srv.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			base := filepath.Base(event.Name)
			if !strings.HasSuffix(base, ".json") || strings.HasPrefix(base, ".") {
				continue
			}
			res, err := srv.ingest(event.Name)
			if settling(event.Name, err) {
				log.Debugf("skipping %s: %v", event.Name, err)
				continue
			}
			srv.publish("inbox", OpPut, res)
			if srv.OnIngest != nil {
				srv.OnIngest(event.Name, res)
			}
		case err, ok := <-srv.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("inbox watcher: %v", err)
		}
	}
}
