package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pion/logging"

	"github.com/WeebOrWeed/3d-streaming/internal/decoders"
	"github.com/WeebOrWeed/3d-streaming/internal/display"
	"github.com/WeebOrWeed/3d-streaming/internal/rtc"
	"github.com/WeebOrWeed/3d-streaming/internal/stereo"
)

const defaultStunServer = "stun:stun.l.google.com:19302"

func main() {
	publisherURL := flag.String("publisher", "http://localhost:3030", "publisher signaling base URL")
	modeName := flag.String("mode", stereo.CrossEye.String(), "stereo display mode: cross-eye, parallel, anaglyph-red-cyan, anaglyph-green-magenta")
	offset := flag.Int("offset", 20, "convergence offset in columns [10,100]")
	stunServer := flag.String("stun.server", defaultStunServer, "STUN server URL (stun:)")
	outDir := flag.String("out.dir", "snapshots", "directory for display frame snapshots")
	flag.Parse()

	mode, err := stereo.ParseMode(*modeName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	params := stereo.Params{Mode: mode, Offset: *offset}
	if err := params.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()
	logger := loggerFactory.NewLogger("receiver")

	engine := rtc.NewPionEngine(*stunServer, nil, decoders.NewDecoderService(), loggerFactory)
	lifecycle := rtc.NewLifecycle(engine, nil, loggerFactory)
	defer lifecycle.Reset()

	go func() {
		for ev := range lifecycle.Events() {
			logger.Infof("session state: %v", ev.State)
		}
	}()

	sess, err := lifecycle.BeginSession(rtc.RoleReceiver)
	if err != nil {
		log.Fatalf("can't begin session: %v", err)
	}

	offer, err := lifecycle.CreateLocalOffer()
	if err != nil {
		log.Fatalf("can't create offer: %v", err)
	}

	answer, err := requestAnswer(*publisherURL+"/offer", offer)
	if err != nil {
		log.Fatalf("signaling with %s failed: %v", *publisherURL, err)
	}

	if err := lifecycle.ApplyRemoteAnswer(answer); err != nil {
		log.Fatalf("can't apply answer: %v", err)
	}

	sink, err := display.NewSnapshotSink(*outDir, time.Second)
	if err != nil {
		log.Fatalf("can't create snapshot sink: %v", err)
	}
	pipeline, err := display.NewPipeline(sess.Frames(), sink, params, loggerFactory)
	if err != nil {
		log.Fatalf("can't create display pipeline: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("receiving, mode=%v offset=%d, snapshots in %s", mode, *offset, *outDir)
	if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("display pipeline: %v", err)
	}
}

// requestAnswer POSTs the local offer to the publisher and decodes the
// answer. Connection errors are retried with exponential backoff while the
// publisher comes up; a non-200 signaling response is final.
func requestAnswer(url string, offer rtc.SessionDescription) (rtc.SessionDescription, error) {
	body, err := json.Marshal(offer)
	if err != nil {
		return rtc.SessionDescription{}, err
	}

	var answer rtc.SessionDescription
	operation := func() error {
		resp, err := http.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("publisher rejected offer: %s: %s", resp.Status, msg))
		}
		return json.NewDecoder(resp.Body).Decode(&answer)
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.Retry(operation, policy); err != nil {
		return rtc.SessionDescription{}, err
	}
	return answer, nil
}
