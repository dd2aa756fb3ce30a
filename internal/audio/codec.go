// Package audio carries the duplex voice channel: callers stream audio
// chunks over a WebSocket, a zero-length chunk marks the end of an
// utterance, and the agent's reply streams back as audio followed by a
// completion control frame.
package audio

import "context"

// Transcriber turns one buffered utterance into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns reply text into a sequence of audio chunks
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([][]byte, error)
}

const defaultChunkSize = 3200

// TextCodec is the keyless development codec: utterance bytes are UTF-8
// text and synthesized "audio" is the reply text split into fixed-size
// chunks. Lets the duplex channel run end to end without speech services.
type TextCodec struct {
	ChunkSize int
}

func (c TextCodec) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(audio), nil
}

func (c TextCodec) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := c.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}

	data := []byte(text)
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunk := make([]byte, n)
		copy(chunk, data[:n])
		chunks = append(chunks, chunk)
		data = data[n:]
	}
	return chunks, nil
}
