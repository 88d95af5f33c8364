package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/trueledger/db"
	"github.com/t7a/trueledger/did"
	"github.com/t7a/trueledger/ledger"
	"github.com/t7a/trueledger/server"
	"go.uber.org/multierr"
)

func init() {
	debug := os.Getenv("DEBUG")
	formatter := &logrus.TextFormatter{
		DisableTimestamp: true,
	}
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
		logrus.SetReportCaller(true)
		formatter.CallerPrettyfier = caller()
		formatter.FieldMap = logrus.FieldMap{
			logrus.FieldKeyFile: "caller",
		}
	}
	logrus.SetFormatter(formatter)
}

// caller returns string presentation of log caller which is formatted as
// `/path/to/file.go:line_number`. e.g. `/internal/app/api.go:25`
// https://stackoverflow.com/questions/63658002/is-it-possible-to-wrap-logrus-logger-functions-without-losing-the-line-number-pr
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d", strings.TrimPrefix(f.File, p), f.Line)
	}
}

// exit codes
const (
	rcOK       = 0
	rcInvalid  = 3
	rcUsage    = 22
	rcFailed   = 42
	defaultAlg = "sha256"
)

type Opts struct {
	Genesis    bool
	Verify     bool
	Hash       bool
	Did        bool
	Encode     bool
	Decode     bool
	Init       bool
	Put        bool
	Get        bool
	Label      bool
	Ls         bool
	Serve      bool
	Submit     bool
	All        bool `docopt:"-a"`
	Out        bool `docopt:"-o"`
	Labeled    bool `docopt:"-l"`
	Seed       string
	Timestamp  string
	Filename   string
	Pubkey     string
	Identifier string
	Canpath    string
	Name       string
	Socket     string
	Feed       string
}

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {

	usage := `trueledger

Usage:
  tl genesis [-o <filename>] [--seed=<hex>] [--timestamp=<ts>]
  tl verify [-a] <filename>
  tl hash <filename>
  tl did encode <pubkey>
  tl did decode <identifier>
  tl init
  tl put [-l <name>] <filename>
  tl get <canpath> [-o <filename>]
  tl label <canpath> <name>
  tl ls
  tl serve [--feed=<addr>] <socket>
  tl submit <socket> <filename>

Options:
  -h --help     Show this screen.
  --version     Show version.
`
	parser := &docopt.Parser{OptionsFirst: false, HelpHandler: docopt.PrintHelpOnly}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.1")
	if err != nil {
		return rcUsage
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return rcUsage
	}
	log.Debug(opts)

	switch true {
	case opts.Genesis:
		return genesis(opts)
	case opts.Verify:
		stx, err := ledger.ReadFile(opts.Filename)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		if !verify(stx, opts.All) {
			return rcInvalid
		}
	case opts.Hash:
		stx, err := ledger.ReadFile(opts.Filename)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		digest := stx.Payload.Hash()
		fmt.Println(hex.EncodeToString(digest[:]))
	case opts.Did && opts.Encode:
		pub, err := hex.DecodeString(opts.Pubkey)
		if err != nil || len(pub) != 32 {
			log.Errorf("public key must be 64 hex digits: %q", opts.Pubkey)
			return rcFailed
		}
		fmt.Println(did.Encode(pub))
	case opts.Did && opts.Decode:
		pub, err := did.Decode(opts.Identifier)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Println(hex.EncodeToString(pub))
	case opts.Init:
		msg, err := create()
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Println(msg)
	case opts.Put:
		stx, err := ledger.ReadFile(opts.Filename)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		err = ledger.Verify(stx)
		if err != nil {
			fmt.Printf("%s: FAIL: %v\n", stage(ledger.FailedCheck(err)), err)
			return rcInvalid
		}
		label := ""
		if opts.Labeled {
			label = opts.Name
		}
		path, err := putTx(stx, label)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		if label != "" {
			fmt.Printf("label/%s -> %s\n", label, path.Canon)
		} else {
			fmt.Println(path.Canon)
		}
	case opts.Get:
		stx, err := getTx(opts.Canpath)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		if opts.Out {
			err = ledger.WriteFile(opts.Filename, stx)
		} else {
			var buf []byte
			buf, err = stx.Marshal()
			if err == nil {
				_, err = os.Stdout.Write(buf)
			}
		}
		if err != nil {
			log.Error(err)
			return rcFailed
		}
	case opts.Label:
		path, err := link(opts.Canpath, opts.Name)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Printf("label/%s -> %s\n", opts.Name, path.Canon)
	case opts.Ls:
		lines, err := ls()
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		for _, line := range lines {
			fmt.Println(line)
		}
	case opts.Serve:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err := serve(ctx, dbdir(), opts.Socket, opts.Feed)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
	case opts.Submit:
		return submit(opts.Socket, opts.Filename)
	}
	return rcOK
}

func genesis(opts Opts) (rc int) {
	var id *did.Identity
	var err error
	if opts.Seed != "" {
		var seed []byte
		seed, err = hex.DecodeString(opts.Seed)
		if err == nil {
			id, err = did.FromSeed(seed)
		}
		err = errors.Wrap(err, "bad seed")
	} else {
		id, err = did.Generate(rand.Reader)
	}
	if err != nil {
		log.Error(err)
		return rcFailed
	}

	var ts uint64
	if opts.Timestamp != "" {
		ts, err = strconv.ParseUint(opts.Timestamp, 10, 64)
		if err != nil {
			log.Errorf("bad timestamp: %v", err)
			return rcUsage
		}
	}

	stx := ledger.Genesis(id.DID, ts).Sign(id)
	digest := stx.Payload.Hash()
	fmt.Printf("author %s\n", id.DID)
	fmt.Printf("hash %s\n", hex.EncodeToString(digest[:]))

	if opts.Out {
		err = ledger.WriteFile(opts.Filename, stx)
		if err != nil {
			log.Error(err)
			return rcFailed
		}
		fmt.Printf("wrote %s\n", opts.Filename)
		return rcOK
	}
	buf, err := stx.Marshal()
	if err != nil {
		log.Error(err)
		return rcFailed
	}
	os.Stdout.Write(buf)
	return rcOK
}

// the checks as reported to the user, in the order Verify runs them
var stages = []string{"identity", "signature", "balance"}

func stage(check ledger.Check) string {
	switch check {
	case ledger.CheckIdentity:
		return "identity"
	case ledger.CheckSignatureFormat, ledger.CheckSignature:
		return "signature"
	case ledger.CheckAmountFormat, ledger.CheckBalance:
		return "balance"
	}
	return ""
}

// verify prints one line per check and reports whether stx passed.
// With all set, every check runs even after a failure.
func verify(stx *ledger.SignedTransaction, all bool) (ok bool) {
	failed := make(map[string]error)
	if all {
		for _, err := range multierr.Errors(ledger.VerifyAll(stx)) {
			failed[stage(ledger.FailedCheck(err))] = err
		}
	} else {
		err := ledger.Verify(stx)
		if err != nil {
			failed[stage(ledger.FailedCheck(err))] = err
		}
	}
	for _, name := range stages {
		err, bad := failed[name]
		switch {
		case bad:
			fmt.Printf("%s: FAIL: %v\n", name, err)
		case !all && len(failed) > 0:
			// short-circuited
			return false
		case name == "signature" && failed["identity"] != nil:
			fmt.Printf("%s: skipped\n", name)
		default:
			fmt.Printf("%s: ok\n", name)
		}
	}
	return len(failed) == 0
}

func dbdir() (dir string) {
	dir = os.Getenv("TLDIR")
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		Ck(err)
	}
	return
}

func create() (msg string, err error) {
	defer Return(&err)
	srv, err := server.Create(dbdir())
	Ck(err)
	defer srv.Close()
	return fmt.Sprintf("Initialized empty store in %s", srv.Dir), nil
}

func opendb() (*db.Db, error) {
	return db.Open(dbdir())
}

func putTx(stx *ledger.SignedTransaction, label string) (path *db.Path, err error) {
	defer Return(&err)
	store, err := opendb()
	Ck(err)
	path, err = store.PutTx(defaultAlg, stx)
	Ck(err)
	if label != "" {
		_, err = store.Link(path, label)
		Ck(err)
	}
	return
}

// resolve accepts a canpath or label/<name>.
func resolve(store *db.Db, canpath string) (path *db.Path, err error) {
	if strings.HasPrefix(canpath, "label/") {
		return store.OpenLabel(strings.TrimPrefix(canpath, "label/"))
	}
	return db.Path{}.New(store, canpath)
}

func getTx(canpath string) (stx *ledger.SignedTransaction, err error) {
	defer Return(&err)
	store, err := opendb()
	Ck(err)
	path, err := resolve(store, canpath)
	Ck(err)
	return store.GetTx(path)
}

func link(canpath, name string) (path *db.Path, err error) {
	defer Return(&err)
	store, err := opendb()
	Ck(err)
	path, err = resolve(store, canpath)
	Ck(err)
	_, err = store.Link(path, name)
	Ck(err)
	return
}

func ls() (lines []string, err error) {
	defer Return(&err)
	store, err := opendb()
	Ck(err)
	names, err := store.Labels()
	Ck(err)
	for _, name := range names {
		path, err := store.OpenLabel(name)
		Ck(err)
		lines = append(lines, fmt.Sprintf("%s %s", name, path.Canon))
	}
	return
}

// serve runs the daemon until ctx is done.  When feed is set,
// receipts are also streamed to websocket subscribers at
// ws://<feed>/ws.
func serve(ctx context.Context, dir, socket, feed string) (err error) {
	defer Return(&err)
	srv, err := server.Open(dir)
	Ck(err)
	defer srv.Close()

	if feed != "" {
		hub := server.NewHub()
		go hub.Run()
		defer hub.Stop()
		srv.Feed = hub
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		httpd := &http.Server{Addr: feed, Handler: mux}
		go func() {
			err := httpd.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				log.Error(err)
			}
		}()
		defer httpd.Close()
		log.Infof("feed on ws://%s/ws", feed)
	}

	listener, err := srv.Listen(socket)
	Ck(err)
	log.Infof("listening on %s", listener.Addr())

	go func() {
		err := srv.Watch(ctx)
		if err != nil {
			log.Error(err)
		}
	}()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	return srv.Serve(listener)
}

func submit(socket, fn string) (rc int) {
	stx, err := ledger.ReadFile(fn)
	if err != nil {
		log.Error(err)
		return rcFailed
	}
	client, err := server.Dial(socket)
	if err != nil {
		log.Error(err)
		return rcFailed
	}
	defer client.Close()
	res, err := client.Put(stx, "")
	if err != nil {
		log.Error(err)
		return rcFailed
	}
	if !res.OK {
		if res.Check == "" {
			log.Error(res.Error())
			return rcFailed
		}
		fmt.Printf("%s: FAIL: %s\n", stage(ledger.Check(res.Check)), res.Err)
		return rcInvalid
	}
	fmt.Println(res.Path)
	return rcOK
}
