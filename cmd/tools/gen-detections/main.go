// Command gen-detections generates synthetic detection streams for
// testing and tuning the rally pipeline. It emits the JSONL frame
// format consumed by rallycut: parabolic arcs for rallies, carried or
// rolling motion for negatives, and dead air between scenes, with
// configurable noise and dropout.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/bumpsetcut/rallycore/internal/rally"
)

type frameLine struct {
	TimeValue int64 `json:"time_value"`
	Timescale int32 `json:"timescale"`

	X                 *float64 `json:"x,omitempty"`
	Y                 *float64 `json:"y,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
	SecondaryPresence bool     `json:"secondary_presence"`
}

type generator struct {
	rng       *rand.Rand
	frameRate float64
	noise     float64
	dropout   float64
	gravity   float64
}

// detectionAt returns a noisy detection for the ideal position, or nil
// when the frame is a simulated detector miss.
func (g *generator) detectionAt(x, y float64) (*float64, *float64, *float64) {
	if g.rng.Float64() < g.dropout {
		return nil, nil, nil
	}
	nx := x + g.rng.NormFloat64()*g.noise
	ny := y + g.rng.NormFloat64()*g.noise
	conf := 0.7 + 0.3*g.rng.Float64()
	return &nx, &ny, &conf
}

// arc emits one rally: a ball served from the left, following a
// ballistic arc with a contact (velocity reversal) roughly mid-flight.
func (g *generator) arc(out []frameLine, startT, duration float64) []frameLine {
	x0, y0 := 0.15, 0.75
	vx, vy := 0.5, -1.2
	contact := startT + duration/2

	dt := 1.0 / g.frameRate
	x, y := x0, y0
	contacted := false
	for t := startT; t < startT+duration; t += dt {
		if !contacted && t >= contact {
			// Receiving player sends it back up.
			vx, vy = -vx, -1.0
			contacted = true
		}
		px, py, conf := g.detectionAt(x, y)
		out = append(out, frame(t, px, py, conf, true))

		x += vx * dt
		y += vy*dt + 0.5*g.gravity*dt*dt
		vy += g.gravity * dt
	}
	return out
}

// carried emits hand-carried motion: slow, jittery, no ballistic
// curvature. The pipeline should reject it.
func (g *generator) carried(out []frameLine, startT, duration float64) []frameLine {
	dt := 1.0 / g.frameRate
	x, y := 0.5, 0.6
	for t := startT; t < startT+duration; t += dt {
		x += 0.03*dt + g.rng.NormFloat64()*0.004
		y += g.rng.NormFloat64() * 0.004
		px, py, conf := g.detectionAt(x, y)
		out = append(out, frame(t, px, py, conf, true))
	}
	return out
}

// rolling emits a ball decelerating along the ground at constant height.
func (g *generator) rolling(out []frameLine, startT, duration float64) []frameLine {
	dt := 1.0 / g.frameRate
	x, vx := 0.1, 0.6
	for t := startT; t < startT+duration; t += dt {
		px, py, conf := g.detectionAt(x, 0.9)
		out = append(out, frame(t, px, py, conf, false))
		x += vx * dt
		vx = math.Max(0, vx-0.25*dt)
	}
	return out
}

// deadAir emits empty frames with no detections and no players visible.
func (g *generator) deadAir(out []frameLine, startT, duration float64) []frameLine {
	dt := 1.0 / g.frameRate
	for t := startT; t < startT+duration; t += dt {
		out = append(out, frame(t, nil, nil, nil, false))
	}
	return out
}

func frame(t float64, x, y, conf *float64, secondary bool) frameLine {
	mt := rally.MediaTimeFromSeconds(t)
	return frameLine{
		TimeValue:         mt.Value,
		Timescale:         mt.Timescale,
		X:                 x,
		Y:                 y,
		Confidence:        conf,
		SecondaryPresence: secondary,
	}
}

func main() {
	output := flag.String("o", "detections.jsonl", "output path ('-' for stdout)")
	scenes := flag.String("scenes", "dead:2,arc:3,dead:4,arc:2.5,dead:3", "comma-separated scene list: kind:seconds with kinds arc, carried, rolling, dead")
	frameRate := flag.Float64("fps", 30, "frames per second")
	noise := flag.Float64("noise", 0.005, "detection position noise stddev (normalized units)")
	dropout := flag.Float64("dropout", 0.05, "per-frame probability of a missed detection")
	gravity := flag.Float64("gravity", 2.5, "downward acceleration (normalized units/s^2)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	g := &generator{
		rng:       rand.New(rand.NewSource(*seed)),
		frameRate: *frameRate,
		noise:     *noise,
		dropout:   *dropout,
		gravity:   *gravity,
	}

	var frames []frameLine
	t := 0.0
	for _, scene := range strings.Split(*scenes, ",") {
		kind, durStr, ok := strings.Cut(strings.TrimSpace(scene), ":")
		if !ok {
			log.Fatalf("invalid scene %q, want kind:seconds", scene)
		}
		dur, err := strconv.ParseFloat(durStr, 64)
		if err != nil {
			log.Fatalf("invalid scene duration %q: %v", durStr, err)
		}

		switch kind {
		case "arc":
			frames = g.arc(frames, t, dur)
		case "carried":
			frames = g.carried(frames, t, dur)
		case "rolling":
			frames = g.rolling(frames, t, dur)
		case "dead":
			frames = g.deadAir(frames, t, dur)
		default:
			log.Fatalf("unknown scene kind %q", kind)
		}
		t += dur
	}

	var w *bufio.Writer
	if *output == "-" {
		w = bufio.NewWriter(os.Stdout)
	} else {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		w = bufio.NewWriter(f)
	}
	defer w.Flush()

	enc := json.NewEncoder(w)
	for _, fl := range frames {
		if err := enc.Encode(fl); err != nil {
			log.Fatalf("write frame: %v", err)
		}
	}
	log.Printf("wrote %d frames (%.1fs at %.0f fps) to %s", len(frames), t, *frameRate, *output)
}
