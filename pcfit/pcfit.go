/*

Pcfit fits a hierarchical Bayesian model to paired-comparison
experiment data. Subject posteriors are sampled with Hamiltonian Monte
Carlo, population distributions are learned with a variational loop.

The basic usage of pcfit looks like this:

	pcfit dataset.json

, this will fit every group and attribute of the dataset using the
Thurstone latent variable model.

To compare a model where population quality is fixed at zero with the
full model run:

	pcfit -lrt -json result.json dataset.json

To see all the options run:

	pcfit -h

*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/op/go-logging"
	"gopkg.in/alecthomas/kingpin.v2"

	"bitbucket.org/Davydov/pcmodel/checkpoint"
	"bitbucket.org/Davydov/pcmodel/hmodel"
	"bitbucket.org/Davydov/pcmodel/obs"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("pcfit")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("pcfit", "hierarchical paired-comparison model fitter").Version(version)

	// input
	dataFileName = app.Arg("dataset", "JSON dataset (layout and responses)").Required().ExistingFile()

	// model
	rvName = app.Flag("rv", "latent variable model (thurstone or bradley)").
		Default("thurstone").Enum("thurstone", "bradley")
	nullQuality = app.Flag("null", "fix population mean quality at zero").Bool()
	lrt         = app.Flag("lrt", "fit the null and the full models and compare them").Bool()

	// prior
	beta0         = app.Flag("beta0", "prior weight of the population mean").Default("0.1").Float64()
	shape0        = app.Flag("shape0", "shape of the population precision prior").Default("0.5").Float64()
	scale         = app.Flag("scale", "expected spread of individual parameters").Default("1").Float64()
	learnedWeight = app.Flag("weight", "weight of observed subjects in the population update").Default("1").Float64()

	// learning
	nSamples    = app.Flag("samples", "number of posterior samples per subject").Default("1000").Int()
	minIter     = app.Flag("miniter", "minimum number of iterations").Default("5").Int()
	maxIter     = app.Flag("maxiter", "maximum number of iterations").Default("50").Int()
	minStep     = app.Flag("minstep", "minimal lower bound improvement over miniter iterations").Default("0.1").Float64()
	minSubjects = app.Flag("minsubj", "warn if a group has fewer subjects").Default("3").Int()
	method      = app.Flag("method", "MAP optimization method to use "+
		"(lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints, "+
		"bfgs: Broyden–Fletcher–Goldfarb–Shanno"+
		")").Default("lbfgsb").Enum("lbfgsb", "bfgs")
	mapIter = app.Flag("mapiter", "maximum number of MAP optimizer iterations (0 for no limit)").Default("1000").Int()
	gtol    = app.Flag("gtol", "MAP optimizer gradient tolerance").Default("1e-6").Float64()
	nnLag   = app.Flag("nnlag", "ignore samples closer than this in the chain for the entropy estimate").Default("10").Int()

	// sampler
	stepSize  = app.Flag("step", "initial HMC step size").Default("0.1").Float64()
	leapfrog  = app.Flag("leapfrog", "number of leapfrog steps").Default("10").Int()
	burnIn    = app.Flag("burnin", "number of HMC transitions to discard").Default("200").Int()
	accPeriod = app.Flag("accept", "adapt step size every N transitions").Default("20").Int()

	// predictive
	nPredictive = app.Flag("npred", "number of population predictive samples in the summary").Default("1000").Int()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// checkpoints
	checkpointF       = app.Flag("checkpoint", "checkpoint database file").String()
	checkpointSeconds = app.Flag("checkpoint-seconds", "save checkpoint at most every N seconds").Default("60").Float64()

	// output
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

// readDataset reads the dataset file.
func readDataset(fn string) (*obs.Dataset, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return obs.ReadDataset(f)
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))
	startTime := time.Now()

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range []string{"pcfit", "hmodel", "optimize", "obs", "checkpoint"} {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	runtime.GOMAXPROCS(*nThreads)
	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ds, err := readDataset(*dataFileName)
	if err != nil {
		log.Fatal("Error reading dataset:", err)
	}

	var cp hmodel.Checkpointer
	if *checkpointF != "" {
		cio, err := checkpoint.Open(*checkpointF, *checkpointSeconds)
		if err != nil {
			log.Fatal("Error opening checkpoint database:", err)
		}
		defer cio.Close()
		cp = cio
	}

	// interrupted fits return the best models so far
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := newFitSettings(ds)
	summary := &Summary{
		Version:     version,
		CommandLine: os.Args,
		Seed:        *seed,
		NThreads:    effectiveNThreads,
	}

	if *lrt {
		summary.Runs, summary.Tests, err = hypTest(ctx, fs, cp)
	} else {
		var run *RunSummary
		run, err = fs.run(ctx, *nullQuality, cp)
		if run != nil {
			summary.Runs = append(summary.Runs, run)
		}
	}
	if err != nil {
		log.Error(err)
	}

	summary.Time = time.Since(startTime).Seconds()
	log.Noticef("Running time: %v", time.Since(startTime))

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
