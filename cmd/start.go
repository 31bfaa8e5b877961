package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/rowdis/engine"
	"github.com/leftmike/rowdis/kv"
	"github.com/leftmike/rowdis/rowstore"
	"github.com/leftmike/rowdis/server"
)

var (
	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the Rowdis server",
		RunE:  startRun,
	}

	defaultEngine = engine.DefaultConfig()

	address = cfg.Var(new(string), "address").Short("a").
		Usage("`address` used to serve the Redis protocol").Env("ROWDIS_ADDRESS").
		String("localhost:6379")
	adminAddress = cfg.Var(new(string), "admin-address").
		Usage("`address` used to serve metrics; empty to disable").
		Env("ROWDIS_ADMIN_ADDRESS").String("localhost:6380")
	kvEngine = cfg.Var(new(string), "kv").
		Usage("key-value storage: "+strings.Join(kv.Engines, ", ")).Env("ROWDIS_KV").
		String("pebble")
	dataDir = cfg.Var(new(string), "data").Usage("`directory` containing the data").
		Env("ROWDIS_DATA").String("testdata")
	syncWrites = cfg.Var(new(bool), "sync").Usage("sync commits to stable storage").
		Bool(false)
	shutdownTimeout = cfg.Var(new(time.Duration), "shutdown-timeout").
		Usage("how long to wait for connections to finish").Duration(10 * time.Second)

	maxBulkLen = cfg.Var(new(int64), "max-bulk-len").
		Usage("largest bulk string accepted from a client").Size(512 * 1024 * 1024)
	maxArgs = cfg.Var(new(int), "max-args").Usage("most arguments accepted in one command").
		Int(1024 * 1024)

	maxKeyLen = cfg.Var(new(int), "max-key-len").Usage("longest key or field").
		Int(defaultEngine.MaxKeyLen)
	maxValueLen = cfg.Var(new(int64), "max-value-len").Usage("longest value").
		Size(int64(defaultEngine.MaxValueLen))
	stringInline = cfg.Var(new(int64), "string-inline").
		Usage("string bytes stored in the key row").Size(int64(defaultEngine.StringInline))
	hashInline = cfg.Var(new(int64), "hash-inline").
		Usage("hash field bytes stored in the key row").Size(int64(defaultEngine.HashInline))
	extensionCapacity = cfg.Var(new(int64), "extension-capacity").
		Usage("value bytes stored in each extension row").
		Size(int64(defaultEngine.ExtensionCapacity))
	writeBatch = cfg.Var(new(int), "write-batch").
		Usage("extension rows written per transaction batch").Int(defaultEngine.WriteBatch)
	readBatch = cfg.Var(new(int), "read-batch").
		Usage("extension rows read per transaction batch").Int(defaultEngine.ReadBatch)
	window = cfg.Var(new(int), "window").
		Usage("most operations outstanding for one multi-key command").Int(defaultEngine.Window)
	maxOutstandingBytes = cfg.Var(new(int64), "max-outstanding-bytes").
		Usage("most value bytes outstanding for one multi-key command").
		Size(defaultEngine.MaxOutstandingBytes)
	prefetch = cfg.Var(new(int), "prefetch").Usage("surrogate ids reserved per refill").
		Int(defaultEngine.Prefetch)
	faultFatal = cfg.Var(new(bool), "fault-fatal").
		Usage("exit when a transaction leak is detected").Bool(defaultEngine.FaultFatal)
)

func init() {
	rowdisCmd.AddCommand(startCmd)
}

func engineConfig() engine.Config {
	return engine.Config{
		MaxKeyLen:           *maxKeyLen,
		MaxValueLen:         int(*maxValueLen),
		StringInline:        int(*stringInline),
		HashInline:          int(*hashInline),
		ExtensionCapacity:   int(*extensionCapacity),
		WriteBatch:          *writeBatch,
		ReadBatch:           *readBatch,
		Window:              *window,
		MaxOutstandingBytes: *maxOutstandingBytes,
		Prefetch:            *prefetch,
		FaultFatal:          *faultFatal,
	}
}

func openEngine() (*engine.Engine, *rowstore.Store, error) {
	st, err := kv.Open(*kvEngine, *dataDir, log.StandardLogger())
	if err != nil {
		return nil, nil, fmt.Errorf("rowdis: %s", err)
	}
	rst, err := rowstore.Open(st, *syncWrites)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("rowdis: %s", err)
	}
	e, err := engine.Open(rst, engineConfig())
	if err != nil {
		rst.Close()
		return nil, nil, fmt.Errorf("rowdis: %s", err)
	}

	log.WithFields(log.Fields{
		"kv":   *kvEngine,
		"data": *dataDir,
	}).Info("engine opened")
	return e, rst, nil
}

func newServer(addr string, e *engine.Engine) *server.Server {
	return server.NewServer(server.Config{
		Address:    addr,
		MaxBulkLen: int(*maxBulkLen),
		MaxArgs:    *maxArgs,
	}, e)
}

func newAdminServer(e *engine.Engine) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health",
		func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprintf(w, "ok: %d open transactions\n", e.OpenTransactions())
		}).Methods(http.MethodGet)
	r.HandleFunc("/tables",
		func(w http.ResponseWriter, req *http.Request) {
			counts, err := e.TableRows(req.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(w, "%s %d\n", name, counts[name])
			}
		}).Methods(http.MethodGet)

	return &http.Server{
		Addr:    *adminAddress,
		Handler: r,
	}
}

func startRun(cmd *cobra.Command, args []string) error {
	e, rst, err := openEngine()
	if err != nil {
		return err
	}
	defer rst.Close()

	svr := newServer(*address, e)
	go func() {
		err := svr.ListenAndServe()
		if err != server.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "rowdis: %s\n", err)
		}
	}()

	var admin *http.Server
	if *adminAddress != "" {
		admin = newAdminServer(e)
		go func() {
			err := admin.ListenAndServe()
			if err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "rowdis: admin: %s\n", err)
			}
		}()
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	fmt.Println("rowdis: waiting for ^C to shutdown")
	<-ch
	go func() {
		<-ch
		os.Exit(0)
	}()

	fmt.Println("rowdis: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()

	if admin != nil {
		admin.Shutdown(ctx)
	}
	err = svr.Shutdown(ctx)
	if err != nil {
		log.WithField("error", err.Error()).Warn("shutdown")
		svr.Close()
	}
	return nil
}
