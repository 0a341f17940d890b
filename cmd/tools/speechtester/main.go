package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/paper-tribunal/backend/internal/config"
	"github.com/zhouzirui/paper-tribunal/backend/internal/model/review"
	speechservice "github.com/zhouzirui/paper-tribunal/backend/internal/service/speech"
)

// Manual smoke test for the TTS backend: renders one utterance in a
// reviewer's voice and writes the audio to disk.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.Speech.Enabled {
		log.Fatal("speech backend not configured, set SPEECH_API_KEY or ELEVENLABS_API_KEY")
	}

	text := flag.String("text", "", "text to synthesize")
	speaker := flag.String("reviewer", speechservice.NarratorSpeaker, "reviewer key or \"narrator\"")
	outPath := flag.String("out", "", "output file path (default <reviewer>.mp3)")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")
	flag.Parse()

	if *text == "" {
		flag.Usage()
		log.Fatal("-text is required")
	}

	voices := speechservice.VoiceProfiles(review.Roster())
	vp, ok := voices[*speaker]
	if !ok {
		log.Fatalf("unknown reviewer %q", *speaker)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := speechservice.NewElevenLabsClient(cfg.Speech)
	req := speechservice.BuildRequest(*text, vp, cfg.Speech.ModelID, cfg.Speech.Format)

	started := time.Now()
	result, err := client.Synthesize(ctx, req)
	if err != nil {
		log.Fatalf("synthesis failed: %v", err)
	}
	log.Printf("synthesized %d bytes in %s (voice=%s stability=%.2f style=%.2f)",
		len(result.Audio), time.Since(started).Round(time.Millisecond), vp.VoiceID, req.Stability, req.Style)

	path := *outPath
	if path == "" {
		path = fmt.Sprintf("%s.mp3", *speaker)
	}
	if err := os.WriteFile(path, result.Audio, 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("wrote %s", path)
}
