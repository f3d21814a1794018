// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"warm-transfer-service/internal/models"
	"warm-transfer-service/internal/stt"
)

// Config holds recognition settings for a streaming session.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
}

// DefaultConfig matches the service's audio contract: 16 kHz LINEAR16
// mono with interim results.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	cfg    Config
	cb     stt.Callback
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// Start begins a streaming recognition session and sends the initial config.
// The response listener goroutine runs until the stream ends.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}
	a.stream = stream
	a.cb = cb

	// Send streaming config as the first message. Word time offsets and
	// diarization give downstream consumers speaker attribution.
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:              speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:       int32(a.cfg.SampleRateHz),
					LanguageCode:          a.cfg.LanguageCode,
					EnableWordTimeOffsets: true,
					DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
						EnableSpeakerDiarization: true,
					},
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return err
	}

	go a.listen()
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close ends the streaming session.
func (a *Adapter) Close() error {
	if a.stream != nil {
		return a.stream.CloseSend()
	}
	return nil
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen() {
	for {
		resp, err := a.stream.Recv()
		if err != nil {
			a.cb.OnError(err)
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			a.cb.OnResult(stt.Result{
				Text:       alt.Transcript,
				IsFinal:    r.IsFinal,
				Confidence: float64(alt.Confidence),
				Words:      convertWords(alt.Words),
			})
		}
	}
}

func convertWords(words []*speechpb.WordInfo) []models.WordInfo {
	if len(words) == 0 {
		return nil
	}
	out := make([]models.WordInfo, 0, len(words))
	for _, w := range words {
		info := models.WordInfo{
			Word:       w.Word,
			SpeakerTag: int(w.SpeakerTag),
		}
		if w.StartTime != nil {
			info.Start = w.StartTime.AsDuration()
		}
		if w.EndTime != nil {
			info.End = w.EndTime.AsDuration()
		}
		out = append(out, info)
	}
	return out
}
