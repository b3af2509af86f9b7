package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"

	"osmsort/internal/diagstatus"
	"osmsort/mergesort"
	"osmsort/reader"
	"osmsort/stats"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging              string      `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version              VersionFlag `help:"Print version information and quit" name:"version" short:"v"`
	DiagnosticsProfiling bool        `help:"Enable CPU profiling and write results to ./profiling.prof."`

	Ingest struct {
		Input       string `help:"The input file. Either .osm or .pbf." placeholder:"<input-file>" arg:"" type:"existingfile"`
		IndexDir    string `help:"Base folder for the pass-1 index files." default:"osmsort-index"`
		Workers     int    `help:"Pass-2 processor worker count." default:"4" short:"w"`
		DebugAssert bool   `help:"Enable the optional debug invariant assertions (§4.4/§5)."`
		DiagPort    string `help:"Port to serve a read-only /status diagnostics endpoint on. Empty disables it." default:""`
	} `cmd:"" help:"Ingest an OSM extract through the two-pass reader and external merge sort."`

	Bench struct {
		Entries        int   `help:"Number of synthetic entries to sort." default:"1000000"`
		PayloadBytes   int   `help:"Payload size per entry." default:"16"`
		ChunkSizeLimit int64 `help:"Chunk size limit in bytes. 0 derives from MaxHeapBytes/Workers." default:"0"`
		Workers        int   `help:"Sort worker count." default:"4"`
		MaxHeapBytes   int64 `help:"Heap budget used to derive/validate chunk size." default:"1073741824"`
	} `cmd:"" help:"Drive ExternalMergeSort alone over synthetic entries, to exercise the chunk-size derivation."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

func main() {
	ctx := kong.Parse(
		&cli,
		kong.Name("osmsort"),
		kong.Description("OSM two-pass reader and external merge sort engine."),
		kong.Vars{"version": VERSION},
	)

	switch strings.ToLower(cli.Logging) {
	case "debug":
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	case "trace":
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	case "info":
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	default:
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	if cli.DiagnosticsProfiling {
		sigolo.Info("Activate CPU profiling")
		f, err := os.Create("profiling.prof")
		sigolo.FatalCheck(err)

		err = pprof.StartCPUProfile(f)
		sigolo.FatalCheck(err)
		defer pprof.StopCPUProfile()
	}

	switch ctx.Command() {
	case "ingest <input>":
		sigolo.FatalCheck(runIngest())
	case "bench":
		sigolo.FatalCheck(runBench())
	default:
		sigolo.Fatalf("Unknown command '%s'", ctx.Command())
	}
}

func openScanner(inputFile string) (osm.Scanner, error) {
	f, err := os.Open(inputFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file %s", inputFile)
	}

	switch {
	case strings.HasSuffix(inputFile, ".osm"):
		return osmxml.New(context.Background(), f), nil
	case strings.HasSuffix(inputFile, ".pbf"):
		return osmpbf.New(context.Background(), f, cli.Ingest.Workers), nil
	default:
		f.Close()
		return nil, errors.Errorf("unsupported input file type for %s, expected .osm or .pbf", inputFile)
	}
}

// runIngest drives C6 (OsmTwoPassReader) end to end over the input file and
// C7 (ExternalMergeSort), using reader.DefaultProfile as the pluggable
// Profile/FeatureRenderer (§1 places the real tag->feature Profile out of
// scope for this module).
func runIngest() error {
	counters := stats.NewCounters()

	if cli.Ingest.DiagPort != "" {
		go diagstatus.StartServer(cli.Ingest.DiagPort, counters)
	}

	r := reader.New(cli.Ingest.IndexDir, cli.Ingest.Workers, cli.Ingest.DebugAssert, counters)
	defer r.Close()

	profile := reader.DefaultProfile{}

	pass1Scanner, err := openScanner(cli.Ingest.Input)
	if err != nil {
		return err
	}
	if err := r.Pass1(pass1Scanner, profile); err != nil {
		pass1Scanner.Close()
		return err
	}
	if err := pass1Scanner.Close(); err != nil {
		return errors.Wrap(err, "closing pass-1 scanner")
	}

	sink, err := mergesort.New(mergesort.Config{Workers: cli.Ingest.Workers}, counters)
	if err != nil {
		return err
	}
	defer sink.Close()

	pass2Scanner, err := openScanner(cli.Ingest.Input)
	if err != nil {
		return err
	}
	if err := r.Pass2(pass2Scanner, profile, profile, sink); err != nil {
		pass2Scanner.Close()
		return err
	}
	if err := pass2Scanner.Close(); err != nil {
		return errors.Wrap(err, "closing pass-2 scanner")
	}

	if err := sink.Sort(); err != nil {
		return err
	}

	it, err := sink.Iterator()
	if err != nil {
		return err
	}

	var count int64
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	if err := it.Err(); err != nil {
		return errors.Wrap(err, "reading sorted output")
	}

	sigolo.Infof("Ingest done: %d rendered features sorted and ready for downstream encoding", count)
	return nil
}

// runBench drives ExternalMergeSort alone over synthetic entries, so the
// chunk-size derivation (DeriveChunkBudget) and spill/merge machinery can
// be exercised without an OSM input file.
func runBench() error {
	cfg := mergesort.Config{
		ChunkSizeLimit: cli.Bench.ChunkSizeLimit,
		Workers:        cli.Bench.Workers,
		MaxHeapBytes:   cli.Bench.MaxHeapBytes,
	}

	ms, err := mergesort.New(cfg, nil)
	if err != nil {
		return err
	}
	defer ms.Close()

	start := time.Now()
	rng := rand.New(rand.NewSource(1))
	payload := make([]byte, cli.Bench.PayloadBytes)

	for i := 0; i < cli.Bench.Entries; i++ {
		rng.Read(payload)
		if err := ms.Add(mergesort.Entry{SortKey: rng.Int63(), Payload: payload}); err != nil {
			return err
		}
	}
	sigolo.Infof("Added %d entries in %s", cli.Bench.Entries, time.Since(start))

	start = time.Now()
	if err := ms.Sort(); err != nil {
		return err
	}
	sigolo.Infof("Sorted in %s", time.Since(start))

	it, err := ms.Iterator()
	if err != nil {
		return err
	}

	var count int64
	var lastKey = int64(-1 << 62)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		if e.SortKey < lastKey {
			return errors.Errorf("bench: sort order violated at entry %d", count)
		}
		lastKey = e.SortKey
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}

	sigolo.Infof("Bench done: %d entries verified in non-decreasing order", count)
	return nil
}
