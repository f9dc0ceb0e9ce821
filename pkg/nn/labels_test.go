package nn

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLabelRoundTrip(t *testing.T) {
	dets := []ObjectDetection{
		{Class: ClassVehicle, Confidence: 0.91, Box: Rect{X: 100, Y: 200, Width: 50, Height: 80}},
		{Class: RemapPerson, Confidence: 0.47, Box: Rect{X: 0, Y: 0, Width: 640, Height: 480}},
		{Class: RemapTrafficLight, Confidence: 0.62, Box: Rect{X: 601, Y: 13, Width: 17, Height: 39}},
	}
	width, height := 640, 480

	labels := make([]Label, 0, len(dets))
	for _, d := range dets {
		labels = append(labels, MakeLabel(d, width, height))
	}

	buf := bytes.Buffer{}
	require.NoError(t, WriteLabels(&buf, labels))

	parsed, nSkipped, err := ParseLabels(&buf)
	require.NoError(t, err)
	require.Equal(t, 0, nSkipped)
	require.Len(t, parsed, len(dets))

	for i, l := range parsed {
		back := l.ToDetection(width, height)
		require.Equal(t, dets[i].Class, back.Class)
		require.InDelta(t, dets[i].Confidence, back.Confidence, 1e-4)
		require.InDelta(t, dets[i].Box.X, back.Box.X, 1)
		require.InDelta(t, dets[i].Box.Y, back.Box.Y, 1)
		require.InDelta(t, dets[i].Box.Width, back.Box.Width, 1)
		require.InDelta(t, dets[i].Box.Height, back.Box.Height, 1)
	}
}

func TestParseLabelsMalformed(t *testing.T) {
	input := strings.Join([]string{
		"0 0.5 0.5 0.1 0.1 0.9",
		"garbage line",
		"1 0.2 0.2 0.05", // too few fields
		"",
		"2 0.7 0.8 0.2 0.1 0.55",
		"x 0.1 0.1 0.1 0.1 0.1", // bad class
	}, "\n")

	labels, nSkipped, err := ParseLabels(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, labels, 2)
	require.Equal(t, 3, nSkipped)
	require.Equal(t, ClassVehicle, labels[0].Class)
	require.Equal(t, ClassLane, labels[1].Class)
}

func TestLabelForClass(t *testing.T) {
	require.Equal(t, "Vehicle", LabelForClass(ClassVehicle))
	require.Equal(t, "person", LabelForClass(RemapPerson))
	require.Equal(t, "traffic light", LabelForClass(RemapTrafficLight))
	require.Equal(t, "object", LabelForClass(RemapOther))
	require.Equal(t, "unknown", LabelForClass(55))
	require.Equal(t, RemapPerson, RemapSecondaryClass(COCOPerson))
	require.Equal(t, RemapTrafficLight, RemapSecondaryClass(COCOTrafficLight))
	require.Equal(t, RemapOther, RemapSecondaryClass(COCOCar))
}
