// audioclient streams a WAV file over the websocket endpoint to
// exercise live transcription end to end.
package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// Stream audio in chunks to simulate real-time capture.
// At 16kHz 16-bit mono = 32000 bytes/second, so 100ms chunks = 3200 bytes.
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Websocket endpoint")
	room := flag.String("room", "audio-test-"+time.Now().Format("150405"), "Conversation room key")
	identity := flag.String("identity", "audioclient", "Customer identity")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s", *serverURL)

	identify := map[string]string{"type": "identify", "kind": "customer", "id": *identity, "room": *room}
	if err := conn.WriteJSON(identify); err != nil {
		log.Fatalf("Failed to identify: %v", err)
	}
	if _, ack, err := conn.ReadMessage(); err != nil {
		log.Fatalf("Failed to read identify ack: %v", err)
	} else {
		log.Printf("Identify ack: %s", ack)
	}

	// Read server messages in the background so transcript
	// notifications show up on the console.
	go func() {
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			log.Printf("<- %s", payload)
		}
	}()

	log.Printf("Streaming audio: room=%s identity=%s", *room, *identity)

	audioChunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	startTime := time.Now()

	for {
		n, err := f.Read(audioChunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		if err := conn.WriteMessage(websocket.BinaryMessage, audioChunk[:n]); err != nil {
			log.Fatalf("Failed to send frame: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("Sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}

		// Simulate real-time streaming
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(startTime)
	log.Printf("Finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	// Give the engine a moment to flush final transcripts before closing.
	time.Sleep(2 * time.Second)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
}
