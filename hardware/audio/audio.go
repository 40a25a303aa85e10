// Package audio plays WAV files through external player.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"os/exec"

	"github.com/juju/errors"
	"github.com/temoto/portal/log2"
)

type Format struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadHeader validates RIFF/WAVE container and returns PCM format.
func ReadHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, errors.Annotate(err, "wav header")
	}
	if !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return Format{}, errors.NotValidf("wav container")
	}
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return Format{}, errors.Annotate(err, "wav fmt chunk not found")
		}
		size := binary.LittleEndian.Uint32(chunk[4:])
		if !bytes.Equal(chunk[0:4], []byte("fmt ")) {
			if _, err := io.CopyN(ioutil.Discard, r, int64(size+size%2)); err != nil {
				return Format{}, errors.Annotate(err, "wav skip chunk")
			}
			continue
		}
		if size < 16 {
			return Format{}, errors.NotValidf("wav fmt size=%d", size)
		}
		var fmtb [16]byte
		if _, err := io.ReadFull(r, fmtb[:]); err != nil {
			return Format{}, errors.Annotate(err, "wav fmt")
		}
		if tag := binary.LittleEndian.Uint16(fmtb[0:]); tag != 1 {
			return Format{}, errors.NotSupportedf("wav format tag=%d", tag)
		}
		return Format{
			Channels:      binary.LittleEndian.Uint16(fmtb[2:]),
			SampleRate:    binary.LittleEndian.Uint32(fmtb[4:]),
			BitsPerSample: binary.LittleEndian.Uint16(fmtb[14:]),
		}, nil
	}
}

type Player struct {
	log     *log2.Log
	command []string
}

// NewPlayer with command like ["aplay", "-q"], file name is appended.
func NewPlayer(command []string, log *log2.Log) *Player {
	if len(command) == 0 {
		command = []string{"aplay", "-q"}
	}
	return &Player{log: log, command: command}
}

// Play blocks until playback finishes.
func (self *Player) Play(ctx context.Context, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Annotate(err, "play")
	}
	format, err := ReadHeader(f)
	f.Close()
	if err != nil {
		return errors.Annotatef(err, "play %s", name)
	}
	self.log.Debugf("play %s channels=%d rate=%d bits=%d", name, format.Channels, format.SampleRate, format.BitsPerSample)

	args := append(append([]string(nil), self.command[1:]...), name)
	out, err := exec.CommandContext(ctx, self.command[0], args...).CombinedOutput()
	if err != nil {
		return errors.Annotatef(err, "play %s output=%s", name, bytes.TrimSpace(out))
	}
	return nil
}
