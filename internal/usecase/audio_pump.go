package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"

	"realtalk/internal/domain"
	"realtalk/internal/ports"
)

// pumpAudioPackets forwards captured Opus packets to the peer's audio track
// until capture ends or the track rejects a write.
func pumpAudioPackets(
	audio ports.AudioSession,
	peer ports.PeerSession,
	report func(code domain.ErrorCode, detail string),
	done chan struct{},
) {
	defer close(done)

	for {
		packet, duration, err := audio.NextPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				report(domain.ErrorCodeAudioCapture, fmt.Sprintf("audio capture error: %v", err))
			}
			return
		}
		if len(packet) == 0 {
			continue
		}
		if err := peer.WriteAudio(packet, duration); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			report(domain.ErrorCodeAudioStream, fmt.Sprintf("failed to stream audio: %v", err))
			return
		}
	}
}
