package raycaster

import (
	"bytes"
	"testing"
)

func TestSampleDumpRoundtrip(t *testing.T) {
	samples := []GBufferSample{
		{Color: 0xff0000ff, Key: 1, Depth: 1.5},
		{Key: MissKey},
		{Color: 0x80808080, Key: 2, Depth: 9},
	}
	var buf bytes.Buffer
	if err := WriteSamples(&buf, samples); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSamples(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(samples) {
		t.Fatalf("read %d samples, wrote %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %+v, want %+v", i, got[i], samples[i])
		}
	}
}

func TestSampleDumpBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NOTADUMPxxxxmore")
	if _, err := ReadSamples(&buf); err == nil {
		t.Fatal("no error for bad magic")
	}
}

func TestSampleDumpTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSamples(&buf, []GBufferSample{{Key: 1}}); err != nil {
		t.Fatal(err)
	}
	trunc := bytes.NewReader(buf.Bytes()[:buf.Len()-1])
	if _, err := ReadSamples(trunc); err == nil {
		t.Fatal("no error for truncated dump")
	}
}
