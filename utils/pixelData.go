package utils

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var ErrEncapsulatedPixelData = errors.New("encapsulated pixel data is not rendered")

// voiLUTFunction is the VOI LUT Function attribute (0028,1056).
var voiLUTFunction = tag.Tag{Group: 0x0028, Element: 0x1056}

type ScalingFunction int

const (
	Linear ScalingFunction = iota
	LinearExact
	Sigmoid
)

// RenderImageWindowParameters maps stored pixel values to gray levels.
type RenderImageWindowParameters struct {
	WindowCenter float64
	WindowWidth  float64
	Function     ScalingFunction
}

// RenderDicomImage parses a DICOM file and renders its first frame.
func RenderDicomImage(data []byte, window *RenderImageWindowParameters) (*image.Gray, error) {
	dataset, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, err
	}
	return RenderImage(dataset, window)
}

// RenderImage renders the first native frame of dataset as an 8 bit gray image.
// Without window parameters the dataset's own window is used, then the full value range.
func RenderImage(dataset dicom.Dataset, window *RenderImageWindowParameters) (*image.Gray, error) {
	pixelDataElement, err := dataset.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, err
	}
	if pixelDataElement.Value.ValueType() != dicom.PixelData {
		return nil, fmt.Errorf("unexpected pixel data value type")
	}
	pixelDataInfo := dicom.MustGetPixelDataInfo(pixelDataElement.Value)
	if len(pixelDataInfo.Frames) == 0 {
		return nil, fmt.Errorf("no frames found")
	}
	frame := pixelDataInfo.Frames[0]
	if frame.Encapsulated {
		return nil, ErrEncapsulatedPixelData
	}

	rows, columns := frame.NativeData.Rows, frame.NativeData.Cols
	if rows <= 0 || columns <= 0 || len(frame.NativeData.Data) < rows*columns {
		return nil, fmt.Errorf("frame of %dx%d has %d pixels", columns, rows, len(frame.NativeData.Data))
	}

	// first sample of every pixel
	pixelData := make([]int, rows*columns)
	for i := range pixelData {
		if len(frame.NativeData.Data[i]) > 0 {
			pixelData[i] = frame.NativeData.Data[i][0]
		}
	}

	if window == nil {
		window = datasetWindow(dataset)
	}
	if window == nil {
		window = rangeWindow(pixelData)
	}

	img := image.NewGray(image.Rect(0, 0, columns, rows))
	for i, value := range pixelData {
		img.Pix[i] = applyWindowing(float64(value), *window)
	}
	if firstString(dataset, tag.PhotometricInterpretation) == "MONOCHROME1" {
		negatePixelData(img.Pix)
	}
	return img, nil
}

func negatePixelData(data []uint8) {
	for i := range data {
		data[i] = math.MaxUint8 - data[i]
	}
}

func applyWindowing(x float64, window RenderImageWindowParameters) uint8 {
	switch window.Function {
	case LinearExact:
		return applyLinearExactWindowing(x, window.WindowWidth, window.WindowCenter)
	case Sigmoid:
		return applySigmoidWindowing(x, window.WindowWidth, window.WindowCenter)
	default:
		return applyLinearWindowing(x, window.WindowWidth, window.WindowCenter)
	}
}

func applyLinearWindowing(x, width, center float64) uint8 {
	if width < 1 {
		width = 1
	}
	low := center - 0.5 - (width-1)/2
	high := center - 0.5 + (width-1)/2
	switch {
	case x <= low:
		return 0
	case x > high:
		return math.MaxUint8
	}
	if width == 1 {
		return math.MaxUint8
	}
	return clamp(((x-(center-0.5))/(width-1) + 0.5) * math.MaxUint8)
}

func applyLinearExactWindowing(x, width, center float64) uint8 {
	if width <= 0 {
		width = 1
	}
	switch {
	case x <= center-width/2:
		return 0
	case x > center+width/2:
		return math.MaxUint8
	}
	return clamp(((x-center)/width + 0.5) * math.MaxUint8)
}

func applySigmoidWindowing(x, width, center float64) uint8 {
	if width <= 0 {
		width = 1
	}
	return clamp(math.MaxUint8 / (1 + math.Exp(-4*(x-center)/width)))
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint8:
		return math.MaxUint8
	}
	return uint8(math.Round(v))
}

func rangeWindow(data []int) *RenderImageWindowParameters {
	if len(data) == 0 {
		return &RenderImageWindowParameters{WindowCenter: 0, WindowWidth: 1}
	}
	lowest, highest := data[0], data[0]
	for _, v := range data {
		if v < lowest {
			lowest = v
		}
		if v > highest {
			highest = v
		}
	}
	width := float64(highest-lowest) + 1
	return &RenderImageWindowParameters{
		WindowCenter: float64(lowest) + width/2,
		WindowWidth:  width,
		Function:     LinearExact,
	}
}

func datasetWindow(dataset dicom.Dataset) *RenderImageWindowParameters {
	center, ok := firstDecimal(dataset, tag.WindowCenter)
	if !ok {
		return nil
	}
	width, ok := firstDecimal(dataset, tag.WindowWidth)
	if !ok || width <= 0 {
		return nil
	}
	window := &RenderImageWindowParameters{WindowCenter: center, WindowWidth: width}
	switch strings.ToUpper(firstString(dataset, voiLUTFunction)) {
	case "SIGMOID":
		window.Function = Sigmoid
	case "LINEAR_EXACT":
		window.Function = LinearExact
	}
	return window
}

func firstDecimal(dataset dicom.Dataset, t tag.Tag) (float64, bool) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	values, ok := element.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
	return v, err == nil
}

func firstString(dataset dicom.Dataset, t tag.Tag) string {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return ""
	}
	values, ok := element.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
