// Command blobcount reads per-frame detections as JSON lines from stdin, tracks and counts objects
// for every camera and writes each line back annotated with tracks and counts.
//
// Input line example:
//
//	{"camera": {"id": "feeder-1"}, "frame": 42, "detections": [{"x": 101.5, "y": 240, "w": 12, "h": 11}]}
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LdDl/mot-counter/internal/config"
	"github.com/LdDl/mot-counter/mot"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	defaults   = mot.DefaultTrackerConfig()
	configPath = flag.String("config", "", "Path to JSON tuning file")
	minIoU     = flag.Float64("min-iou", defaults.MinIoU, "IoU threshold")
	maxAge     = flag.Int("max-age", defaults.MaxAge, "Max frames without match before track is deleted")
	minHits    = flag.Int("min-hits", defaults.MinHitStreak, "Consecutive matches before track is confirmed")
	probe      = flag.Bool("probe", false, "Print linear algebra backend and exit")
)

func main() {
	flag.Parse()
	log.SetPrefix("blobcount: ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if *probe {
		fmt.Println(mot.ProbeBackend())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

// loadConfig merges tuning file with explicitly set flags
func loadConfig() (mot.TrackerConfig, error) {
	tuning := &config.TuningConfig{}
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			return mot.TrackerConfig{}, err
		}
		tuning = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-iou":
			tuning.MinIoU = minIoU
		case "max-age":
			tuning.MaxAge = maxAge
		case "min-hits":
			tuning.MinHitStreak = minHits
		}
	})
	return tuning.TrackerConfig()
}

// camera is a single tracking stream fed over an unbuffered channel
type camera struct {
	id      string
	tracker *mot.TrackManager
	frames  chan mot.FrameInput
}

// serve dispatches input lines to per-camera trackers until input is exhausted or ctx is cancelled
func serve(ctx context.Context, cfg mot.TrackerConfig, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		outMu    sync.Mutex
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}
	cameras := map[string]*camera{}

	s := bufio.NewScanner(in)
	bufsize := 10 << 20
	buf := make([]byte, bufsize)
	s.Buffer(buf, bufsize)

	var lineNum int64
scan:
	for s.Scan() {
		lineNum++
		line := append([]byte(nil), s.Bytes()...)
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			log.Printf("line %d: invalid JSON, skipped", lineNum)
			continue
		}
		parsed := gjson.ParseBytes(line)
		camID := parsed.Get("camera.id").String()
		cam, ok := cameras[camID]
		if !ok {
			tracker, err := mot.NewTrackManager(cfg)
			if err != nil {
				fail(err)
				break scan
			}
			cam = &camera{id: camID, tracker: tracker, frames: make(chan mot.FrameInput)}
			cameras[camID] = cam
			wg.Add(1)
			go func(cam *camera) {
				defer wg.Done()
				err := mot.Run(ctx, cam.tracker, cam.frames, func(output mot.FrameOutput) error {
					annotated, err := annotate(output, cam.tracker)
					if err != nil {
						return err
					}
					outMu.Lock()
					defer outMu.Unlock()
					_, err = fmt.Fprintln(out, string(annotated))
					return err
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					fail(errors.Wrapf(err, "camera %q", cam.id))
				}
			}(cam)
		}
		seq := lineNum
		if frame := parsed.Get("frame"); frame.Exists() {
			seq = frame.Int()
		}
		input := mot.FrameInput{
			Seq:        seq,
			Detections: parseDetections(parsed.Get("detections")),
			Meta:       line,
		}
		select {
		case cam.frames <- input:
		case <-ctx.Done():
			break scan
		}
	}
	scanErr := s.Err()

	for _, cam := range cameras {
		close(cam.frames)
	}
	wg.Wait()

	for _, cam := range cameras {
		stats := cam.tracker.Stats()
		log.Printf("camera %q (session %s): frames=%d counted=%d tracks=%d rejected=%d faults=%d out_of_order=%d",
			cam.id, cam.tracker.Session(), stats.Frames, stats.Counted, stats.TracksCreated,
			stats.RejectedDetections, stats.EstimatorFaults, stats.OutOfOrderFrames)
	}

	if firstErr != nil {
		return firstErr
	}
	if scanErr != nil {
		return errors.Wrap(scanErr, "can't read input")
	}
	return ctx.Err()
}

// parseDetections accepts either {"x","y","w","h"} objects or [x, y, w, h] arrays, center form
func parseDetections(detections gjson.Result) []mot.Box {
	boxes := make([]mot.Box, 0)
	// ForEach visits a scalar as a single value, so anything but an array carries no detections
	if !detections.IsArray() {
		return boxes
	}
	detections.ForEach(func(_, value gjson.Result) bool {
		if value.IsArray() {
			bbox := value.Array()
			if len(bbox) == 4 {
				boxes = append(boxes, mot.NewBox(bbox[0].Float(), bbox[1].Float(), bbox[2].Float(), bbox[3].Float()))
			}
			return true
		}
		boxes = append(boxes, mot.NewBox(
			value.Get("x").Float(),
			value.Get("y").Float(),
			value.Get("w").Float(),
			value.Get("h").Float(),
		))
		return true
	})
	return boxes
}

// annotate echoes input line with tracking output
func annotate(output mot.FrameOutput, tracker *mot.TrackManager) ([]byte, error) {
	line, _ := output.Input.Meta.([]byte)
	if line == nil {
		line = []byte("{}")
	}
	tracks, err := json.Marshal(output.Result.Tracks)
	if err != nil {
		return nil, errors.Wrap(err, "can't marshal tracks")
	}
	counted, err := json.Marshal(output.Result.Counted)
	if err != nil {
		return nil, errors.Wrap(err, "can't marshal counted")
	}
	if line, err = sjson.SetRawBytes(line, "tracks", tracks); err != nil {
		return nil, err
	}
	if line, err = sjson.SetRawBytes(line, "counted", counted); err != nil {
		return nil, err
	}
	if line, err = sjson.SetBytes(line, "total", tracker.TotalCount()); err != nil {
		return nil, err
	}
	return sjson.SetBytes(line, "session", tracker.Session().String())
}
