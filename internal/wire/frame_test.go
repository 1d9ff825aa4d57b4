package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeLayout(t *testing.T) {
	got := Encode("ab", []byte{0xff, 0x00, 0x01})
	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 3,
		0, 0, 0, 0, 0, 0, 0, 2,
		'a', 'b',
		0xff, 0x00, 0x01,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []Frame{
		{Topic: "FilesystemTopic", Payload: []byte(`{"kind":{"type":"other"},"paths":["/x"]}`)},
		{Topic: "LibrettoTopic", Payload: []byte{}},
		{Topic: "bin", Payload: []byte{0x00, 0xff, 0xfe, 0x80, 0xc3, 0x28}},
		{Topic: "", Payload: []byte("no topic")},
	}
	for _, c := range cases {
		var d Decoder
		d.Write(Encode(c.Topic, c.Payload))
		frames, err := d.Frames()
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]Frame{c}, frames); diff != "" {
			t.Errorf("%q: (-want +got):\n%s", c.Topic, diff)
		}
		if d.Buffered() != 0 {
			t.Errorf("%q: %d bytes left over", c.Topic, d.Buffered())
		}
	}
}

func TestByteAtATime(t *testing.T) {
	want := Frame{Topic: "LibrettoTopic", Payload: []byte("payload bytes")}
	data := Encode(want.Topic, want.Payload)

	var d Decoder
	var frames []Frame
	for i := range data {
		d.Write(data[i : i+1])
		got, err := d.Frames()
		if err != nil {
			t.Fatal(err)
		}
		if i < len(data)-1 && len(got) != 0 {
			t.Fatalf("frame emitted after %d of %d bytes", i+1, len(data))
		}
		frames = append(frames, got...)
	}
	if diff := cmp.Diff([]Frame{want}, frames); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestMultipleFramesInOneRead(t *testing.T) {
	want := []Frame{
		{Topic: "t1", Payload: []byte("first")},
		{Topic: "topic-two", Payload: []byte("second")},
		{Topic: "t3", Payload: []byte{}},
	}
	var data []byte
	for _, f := range want {
		data = AppendFrame(data, f.Topic, f.Payload)
	}

	var d Decoder
	d.Write(data)
	got, err := d.Frames()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

// A frame whose payload is shorter than the topic must not be emitted until
// header, topic and payload are all buffered.
func TestCompletenessCountsTopicAndHeader(t *testing.T) {
	topic := strings.Repeat("t", 40)
	data := Encode(topic, []byte("tiny"))

	var d Decoder
	// Enough bytes to cover payload_len alone, but not the topic.
	d.Write(data[:HeaderSize+8])
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("premature frame: ok=%v err=%v", ok, err)
	}
	d.Write(data[HeaderSize+8 : len(data)-1])
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("premature frame one byte short: ok=%v err=%v", ok, err)
	}
	d.Write(data[len(data)-1:])
	f, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if f.Topic != topic || string(f.Payload) != "tiny" {
		t.Fatalf("got %q %q", f.Topic, f.Payload)
	}
}

func TestPartialTailKept(t *testing.T) {
	first := Encode("a", []byte("one"))
	second := Encode("b", []byte("two"))

	var d Decoder
	d.Write(append(append([]byte{}, first...), second[:5]...))
	got, err := d.Frames()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Topic != "a" {
		t.Fatalf("got %v", got)
	}
	if d.Buffered() != 5 {
		t.Fatalf("buffered %d, want 5", d.Buffered())
	}
	d.Write(second[5:])
	got, err = d.Frames()
	if err != nil || len(got) != 1 || string(got[0].Payload) != "two" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFrameDoesNotAliasBuffer(t *testing.T) {
	var d Decoder
	d.Write(Encode("a", []byte("xyz")))
	d.Write(Encode("b", []byte("123")))
	f, _, _ := d.Next()
	if _, _, err := d.Next(); err != nil {
		t.Fatal(err)
	}
	if string(f.Payload) != "xyz" {
		t.Fatalf("payload changed to %q", f.Payload)
	}
}

func TestFrameTooLarge(t *testing.T) {
	hdr := binary.BigEndian.AppendUint64(nil, 1<<40)
	hdr = binary.BigEndian.AppendUint64(hdr, 1)

	d := Decoder{MaxFrameSize: 1024}
	d.Write(hdr)
	if _, _, err := d.Next(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("got %v", err)
	}
}
