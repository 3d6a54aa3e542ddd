package stream

import "testing"

func TestSplitBeamletRangeClipsPerStream(t *testing.T) {
	streams := []*State{
		{ID: 0, PortRawBeamlets: 100},
		{ID: 1, PortRawBeamlets: 100},
		{ID: 2, PortRawBeamlets: 100},
	}
	SplitBeamletRange(streams, 50, 250)

	if streams[0].BaseBeamlet != 50 || streams[0].UpperBeamlet != 100 {
		t.Errorf("stream 0 range = [%d,%d), want [50,100)", streams[0].BaseBeamlet, streams[0].UpperBeamlet)
	}
	if streams[1].BaseBeamlet != 0 || streams[1].UpperBeamlet != 100 {
		t.Errorf("stream 1 range = [%d,%d), want [0,100)", streams[1].BaseBeamlet, streams[1].UpperBeamlet)
	}
	if streams[2].BaseBeamlet != 0 || streams[2].UpperBeamlet != 50 {
		t.Errorf("stream 2 range = [%d,%d), want [0,50)", streams[2].BaseBeamlet, streams[2].UpperBeamlet)
	}

	wantCum := 0
	for i, s := range streams {
		if s.CumulativeBeamlets != wantCum {
			t.Errorf("stream %d cumulative = %d, want %d", i, s.CumulativeBeamlets, wantCum)
		}
		wantCum += s.BeamletSpan()
	}
}

func TestSplitBeamletRangeFullSpan(t *testing.T) {
	streams := []*State{
		{ID: 0, PortRawBeamlets: 61},
		{ID: 1, PortRawBeamlets: 61},
	}
	SplitBeamletRange(streams, 0, 122)
	for i, s := range streams {
		if s.BaseBeamlet != 0 || s.UpperBeamlet != 61 {
			t.Errorf("stream %d range = [%d,%d), want [0,61)", i, s.BaseBeamlet, s.UpperBeamlet)
		}
	}
}
