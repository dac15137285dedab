package transcode

import (
	"context"
	"errors"

	"github.com/asticode/go-astiav"
	"github.com/leeineian/jukebox/proc"
)

const (
	sampleRate = 48000
	frameSize  = 960
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// Opus streams audio files as 20ms stereo Opus frames at 48kHz.
type Opus struct{}

func (Opus) Stream(ctx context.Context, path string, ctl *proc.Controls, dev proc.Device) error {
	t := newTranscoder(ctl, dev)
	defer t.close()

	if err := t.openInput(path); err != nil {
		return err
	}
	if err := t.setupDecoder(); err != nil {
		return err
	}
	if err := t.setupEncoder(); err != nil {
		return err
	}
	return t.run(ctx)
}

type transcoder struct {
	ctl *proc.Controls
	dev proc.Device

	inputCtx               *astiav.FormatContext
	decoderCtx, encoderCtx *astiav.CodecContext
	streamIndex            int
	packet                 *astiav.Packet
	frame                  *astiav.Frame
	resampleCtx            *astiav.SoftwareResampleContext
	resampleFrame          *astiav.Frame
	fifo                   *astiav.AudioFifo
	pts                    int64
}

func newTranscoder(ctl *proc.Controls, dev proc.Device) *transcoder {
	return &transcoder{
		ctl:           ctl,
		dev:           dev,
		packet:        astiav.AllocPacket(),
		frame:         astiav.AllocFrame(),
		resampleFrame: astiav.AllocFrame(),
	}
}

func (t *transcoder) openInput(path string) error {
	t.inputCtx = astiav.AllocFormatContext()
	if t.inputCtx == nil {
		return errors.New("failed to alloc format context")
	}
	if err := t.inputCtx.OpenInput(path, nil, nil); err != nil {
		t.inputCtx.Free()
		t.inputCtx = nil
		return err
	}
	if err := t.inputCtx.FindStreamInfo(nil); err != nil {
		return err
	}
	t.streamIndex = -1
	for _, s := range t.inputCtx.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.streamIndex = s.Index()
			break
		}
	}
	if t.streamIndex == -1 {
		return errors.New("no audio stream")
	}
	return nil
}

func (t *transcoder) setupDecoder() error {
	p := t.inputCtx.Streams()[t.streamIndex].CodecParameters()
	d := astiav.FindDecoder(p.CodecID())
	if d == nil {
		return errors.New("no decoder")
	}
	t.decoderCtx = astiav.AllocCodecContext(d)
	if err := p.ToCodecContext(t.decoderCtx); err != nil {
		return err
	}
	return t.decoderCtx.Open(d, nil)
}

func (t *transcoder) setupEncoder() error {
	e := astiav.FindEncoderByName("libopus")
	if e == nil {
		e = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if e == nil {
		return errors.New("no opus encoder")
	}
	t.encoderCtx = astiav.AllocCodecContext(e)
	t.encoderCtx.SetBitRate(128000)
	t.encoderCtx.SetSampleRate(sampleRate)
	t.encoderCtx.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoderCtx.SetSampleFormat(astiav.SampleFormatS16)
	t.encoderCtx.SetTimeBase(astiav.NewRational(1, sampleRate))
	o := astiav.NewDictionary()
	defer o.Free()
	o.Set("vbr", "on", 0)
	o.Set("frame_size", "20", 0)
	if err := t.encoderCtx.Open(e, o); err != nil {
		return err
	}

	// Configured from the first decoded frame by ConvertFrame
	t.resampleCtx = astiav.AllocSoftwareResampleContext()
	if t.resampleCtx == nil {
		return errors.New("failed to allocate resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoderCtx.SampleFormat(), t.encoderCtx.ChannelLayout().Channels(), frameSize*2)
	return nil
}

func (t *transcoder) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.inputCtx.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return err
		}
		if t.packet.StreamIndex() != t.streamIndex {
			t.packet.Unref()
			continue
		}
		err := t.decoderCtx.SendPacket(t.packet)
		t.packet.Unref()
		if err != nil {
			return err
		}
		if err := t.drainDecoder(ctx); err != nil {
			return err
		}
	}

	_ = t.decoderCtx.SendPacket(nil)
	if err := t.drainDecoder(ctx); err != nil {
		return err
	}
	for t.fifo.Size() > 0 {
		if err := t.encodeFromFifo(ctx, min(frameSize, t.fifo.Size())); err != nil {
			return err
		}
	}
	_ = t.encoderCtx.SendFrame(nil)
	return t.writePackets(ctx)
}

// drainDecoder resamples every decoded frame into the fifo and encodes it
// in whole 20ms frames.
func (t *transcoder) drainDecoder(ctx context.Context) error {
	for {
		if err := t.decoderCtx.ReceiveFrame(t.frame); err != nil {
			return nil
		}
		nb := int(astiav.RescaleQ(int64(t.frame.NbSamples()), astiav.NewRational(1, t.frame.SampleRate()), astiav.NewRational(1, sampleRate)))
		if nb > 0 {
			t.prepareResampleFrame(nb)
			if err := t.resampleCtx.ConvertFrame(t.frame, t.resampleFrame); err == nil {
				_, _ = t.fifo.Write(t.resampleFrame)
			}
		}
		t.frame.Unref()

		for t.fifo.Size() >= frameSize {
			if err := t.encodeFromFifo(ctx, frameSize); err != nil {
				return err
			}
		}
	}
}

func (t *transcoder) prepareResampleFrame(nb int) {
	t.resampleFrame.Unref()
	t.resampleFrame.SetNbSamples(nb)
	t.resampleFrame.SetChannelLayout(t.encoderCtx.ChannelLayout())
	t.resampleFrame.SetSampleFormat(t.encoderCtx.SampleFormat())
	t.resampleFrame.SetSampleRate(sampleRate)
	_ = t.resampleFrame.AllocBuffer(0)
}

func (t *transcoder) encodeFromFifo(ctx context.Context, nb int) error {
	if err := t.ctl.WaitResume(ctx); err != nil {
		return err
	}

	t.prepareResampleFrame(nb)
	if _, err := t.fifo.Read(t.resampleFrame); err != nil {
		return err
	}
	if gain := t.ctl.Gain(); gain != 1 {
		if pcm, err := t.resampleFrame.Data().Bytes(1); err == nil {
			proc.ApplyGain(pcm, gain)
			_ = t.resampleFrame.Data().SetBytes(pcm, 1)
		}
	}
	t.resampleFrame.SetPts(t.pts)
	t.pts += int64(nb)

	if err := t.encoderCtx.SendFrame(t.resampleFrame); err != nil {
		return err
	}
	return t.writePackets(ctx)
}

func (t *transcoder) writePackets(ctx context.Context) error {
	for {
		p := astiav.AllocPacket()
		if t.encoderCtx.ReceivePacket(p) != nil {
			p.Free()
			return nil
		}
		d := p.Data()
		frame := make([]byte, len(d))
		copy(frame, d)
		p.Free()
		if err := t.dev.WriteFrame(ctx, frame); err != nil {
			return err
		}
	}
}

func (t *transcoder) close() {
	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampleCtx != nil {
		t.resampleCtx.Free()
	}
	if t.resampleFrame != nil {
		t.resampleFrame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.decoderCtx != nil {
		t.decoderCtx.Free()
	}
	if t.encoderCtx != nil {
		t.encoderCtx.Free()
	}
	if t.inputCtx != nil {
		t.inputCtx.CloseInput()
		t.inputCtx.Free()
	}
}
