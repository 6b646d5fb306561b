// Command rallycut runs the rally detection pipeline over a recorded
// detection stream and reports the rally segments it finds.
//
// Input is a JSONL file with one frame per line:
//
//	{"time_value":108000,"timescale":90000,"x":0.42,"y":0.31,"confidence":0.87,"secondary_presence":true}
//
// Frames without a ball detection omit x/y/confidence. Plain-seconds
// timestamps are accepted as {"time":1.2,...} when the decoder clock is
// not available.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/bumpsetcut/rallycore/internal/config"
	"github.com/bumpsetcut/rallycore/internal/monitoring"
	"github.com/bumpsetcut/rallycore/internal/rally"
	"github.com/bumpsetcut/rallycore/internal/rally/monitor"
	"github.com/bumpsetcut/rallycore/internal/rally/pipeline"
	"github.com/bumpsetcut/rallycore/internal/rally/segments"
	"github.com/bumpsetcut/rallycore/internal/storage/sqlite"
	"github.com/bumpsetcut/rallycore/internal/version"
)

// frameLine is the JSONL wire form of one frame. X/Y/Confidence are
// pointers so "no detection this frame" is distinguishable from a
// detection at the origin.
type frameLine struct {
	TimeValue *int64   `json:"time_value,omitempty"`
	Timescale *int32   `json:"timescale,omitempty"`
	Time      *float64 `json:"time,omitempty"`

	X                 *float64 `json:"x,omitempty"`
	Y                 *float64 `json:"y,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	SecondaryPresence bool     `json:"secondary_presence"`
}

func (l frameLine) mediaTime() (rally.MediaTime, error) {
	switch {
	case l.TimeValue != nil && l.Timescale != nil:
		return rally.NewMediaTime(*l.TimeValue, *l.Timescale), nil
	case l.Time != nil:
		return rally.MediaTimeFromSeconds(*l.Time), nil
	default:
		return rally.MediaTime{}, fmt.Errorf("frame has no timestamp")
	}
}

func (l frameLine) frame() (pipeline.Frame, error) {
	ts, err := l.mediaTime()
	if err != nil {
		return pipeline.Frame{}, err
	}
	f := pipeline.Frame{Timestamp: ts, SecondaryPresence: l.SecondaryPresence}
	if l.X != nil && l.Y != nil {
		conf := 1.0
		if l.Confidence != nil {
			conf = *l.Confidence
		}
		f.Detection = &rally.Detection{
			Center:     rally.Point{X: *l.X, Y: *l.Y},
			Confidence: conf,
			Timestamp:  ts,
		}
	}
	return f, nil
}

func main() {
	input := flag.String("input", "", "detections JSONL file ('-' for stdin)")
	configPath := flag.String("config", "", "JSON config overrides file")
	preset := flag.String("preset", "", "config preset: default, outdoor-loose, indoor-tight, high-precision")
	duration := flag.Float64("duration", 0, "video duration in seconds (0 = last frame timestamp)")
	dbPath := flag.String("db", "", "sqlite database to persist the run into")
	plotDir := flag.String("plots", "", "base directory for telemetry plots (empty = no plots)")
	quiet := flag.Bool("quiet", false, "suppress diagnostic logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rallycut %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *quiet {
		monitoring.SetLogger(nil)
	}

	var overrides *config.Overrides
	if *configPath != "" {
		var err error
		overrides, err = config.LoadOverrides(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	cfg, err := config.Resolve(*preset, overrides)
	if err != nil {
		log.Fatalf("resolve config: %v", err)
	}

	p := pipeline.New(cfg)

	var plotter *monitor.RunPlotter
	if *plotDir != "" {
		plotter = monitor.NewRunPlotter()
		dir := monitor.MakePlotOutputDir(*plotDir, *input)
		if err := plotter.Start(dir); err != nil {
			log.Fatalf("start plotter: %v", err)
		}
		p.SetSink(plotter)
	}

	var r io.Reader
	if *input == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		defer f.Close()
		r = f
	}

	lastTime, err := feed(p, r)
	if err != nil {
		log.Fatalf("read detections: %v", err)
	}

	videoDuration := *duration
	if videoDuration <= 0 {
		videoDuration = lastTime
	}

	segs := p.Finalize(videoDuration)
	stats := p.Stats()

	printSegments(os.Stdout, segs)
	printSummary(os.Stdout, stats, segments.Statistics(segs, videoDuration))

	if *dbPath != "" {
		store, err := sqlite.Open(*dbPath)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		defer store.Close()
		runID, err := store.SaveRun(*input, presetName(*preset), videoDuration, stats, segs)
		if err != nil {
			log.Fatalf("save run: %v", err)
		}
		fmt.Printf("saved run %s to %s\n", runID, *dbPath)
	}

	if plotter != nil {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Fatalf("generate plots: %v", err)
		}
		fmt.Printf("wrote %d plots to %s\n", n, plotter.OutputDir())
	}
}

// feed streams JSONL frames into the pipeline and returns the latest
// frame timestamp seen.
func feed(p *pipeline.Pipeline, r io.Reader) (float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lastTime float64
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line frameLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return lastTime, fmt.Errorf("line %d: %w", lineNo, err)
		}
		frame, err := line.frame()
		if err != nil {
			return lastTime, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if t := frame.Timestamp.Seconds(); t > lastTime {
			lastTime = t
		}
		p.Process(frame)
	}
	return lastTime, sc.Err()
}

func printSegments(w io.Writer, segs []rally.RallySegment) {
	if len(segs) == 0 {
		fmt.Fprintln(w, "no rally segments detected")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tDURATION\tCONF\tQUALITY\tDETECTIONS\tCONTACTS")
	for i, s := range segs {
		fmt.Fprintf(tw, "%d\t%.2fs\t%.2fs\t%.2fs\t%.2f\t%.2f\t%d\t%d\n",
			i+1, s.StartTime, s.EndTime, s.Duration(), s.Confidence, s.Quality,
			s.DetectionCount, s.EstimatedContacts)
	}
	tw.Flush()
}

func printSummary(w io.Writer, stats pipeline.ProcessingStats, st segments.ExportStats) {
	fmt.Fprintf(w, "\nframes: %d  detections: %d accepted: %d  physics-valid: %.1f%%  mean quality: %.2f\n",
		stats.FramesProcessed, stats.DetectionsSeen, stats.DetectionsAccepted,
		stats.PhysicsValidPercent(), stats.MeanQuality())
	fmt.Fprintf(w, "segments: %d  kept: %.1fs of %.1fs (%.1f%% coverage, %.1fx compression)\n",
		st.Segments, st.KeptSeconds, st.VideoSeconds, 100*st.Coverage, st.CompressionRatio)
}

func presetName(p string) string {
	if p == "" {
		return config.PresetDefault
	}
	return p
}
