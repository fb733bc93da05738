package media

import (
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

const (
	// detection confidence below this is treated as noise, not a face
	detectorConfThreshold = 0.5

	// crop edge (px) at which the size component of the quality score saturates
	sizeScoreFullEdge = 240.0
	// Laplacian variance at which the blur component saturates
	blurScoreFullVariance = 200.0

	cropJpegQuality = 90
)

// DetectorConfig carries the tunable quality gates for face detection.
type DetectorConfig struct {
	MaxFaces      int
	MinFaceEdgePx int
	BlurThreshold float64
}

// DNNFaceDetector finds and quality-filters faces using an SSD face network.
type DNNFaceDetector struct {
	Net     gocv.Net
	Enabled bool

	// configuration parameters used during detection
	InputSizeW  int
	InputSizeH  int
	ScaleFactor float64
	MeanVal     gocv.Scalar

	cfg DetectorConfig
}

// NewDNNFaceDetector loads the DNN model
func NewDNNFaceDetector(configPath, modelPath string, cfg DetectorConfig) *DNNFaceDetector {
	if configPath == "" || modelPath == "" {
		log.Println("detector: config or model path is empty, disabling DNN detector")
		return &DNNFaceDetector{Enabled: false, cfg: cfg}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		log.Printf("detector: ERROR loading network model: config=%s, model=%s", configPath, modelPath)
		return &DNNFaceDetector{Enabled: false, cfg: cfg}
	}
	log.Printf("detector: successfully loaded face detection model")

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)

	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Println("detector: Set backend/target to CUDA")
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Println("detector: Set backend/target to CPU (Default)")
	}

	return &DNNFaceDetector{
		Net:         net,
		Enabled:     true,
		InputSizeW:  300,
		InputSizeH:  300,
		ScaleFactor: 1.0,
		MeanVal:     gocv.NewScalar(104.0, 177.0, 123.0, 0),
		cfg:         cfg,
	}
}

func (d *DNNFaceDetector) Close() {
	if d != nil && d.Enabled {
		d.Net.Close()
		log.Println("detector: closed network")
		d.Enabled = false
	}
}

// Ready reports whether the network loaded.
func (d *DNNFaceDetector) Ready() bool {
	return d != nil && d.Enabled
}

// Detect runs face detection on encoded image bytes and applies the quality
// gates. It fails with ErrNoFaceDetected when the frame holds no face at all
// and ErrTooManyFaces when the raw count exceeds the configured cap.
func (d *DNNFaceDetector) Detect(imageData []byte) (*DetectionOutput, error) {
	if d == nil || !d.Enabled {
		return nil, fmt.Errorf("face detector is not available")
	}

	img, err := gocv.IMDecode(imageData, gocv.IMReadColor)
	if err != nil || img.Empty() {
		return nil, fmt.Errorf("failed to decode image for detection: %w", err)
	}
	defer img.Close()

	boxes := d.rawDetect(img)
	if len(boxes) == 0 {
		return nil, ErrNoFaceDetected
	}
	if len(boxes) > d.cfg.MaxFaces {
		return nil, fmt.Errorf("%w: found %d, cap is %d", ErrTooManyFaces, len(boxes), d.cfg.MaxFaces)
	}

	out := &DetectionOutput{}
	for i, box := range boxes {
		edge := minInt(box.rect.Dx(), box.rect.Dy())
		if edge < d.cfg.MinFaceEdgePx {
			log.Printf("detector: face %d rejected UNDERSIZED (edge %dpx)", i, edge)
			out.Rejected = append(out.Rejected, RejectedFace{Index: i, Reason: RejectUndersized})
			continue
		}

		region := img.Region(box.rect)
		variance := laplacianVariance(region)
		if variance < d.cfg.BlurThreshold {
			region.Close()
			log.Printf("detector: face %d rejected BLURRY (variance %.1f)", i, variance)
			out.Rejected = append(out.Rejected, RejectedFace{Index: i, Reason: RejectBlurry})
			continue
		}

		quality := qualityScore(edge, variance)

		encoded, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, region, []int{gocv.IMWriteJpegQuality, cropJpegQuality})
		region.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to encode crop for face %d: %w", i, err)
		}
		jpeg := make([]byte, len(encoded.GetBytes()))
		copy(jpeg, encoded.GetBytes())
		encoded.Close()

		out.Faces = append(out.Faces, FaceCrop{
			Index:        i,
			X1:           box.rect.Min.X,
			Y1:           box.rect.Min.Y,
			X2:           box.rect.Max.X,
			Y2:           box.rect.Max.Y,
			Confidence:   box.confidence,
			QualityScore: quality,
			JPEG:         jpeg,
		})
	}

	log.Printf("detector: %d faces detected, %d accepted, %d rejected",
		len(boxes), len(out.Faces), len(out.Rejected))
	return out, nil
}

type rawBox struct {
	rect       image.Rectangle
	confidence float32
}

// rawDetect runs the SSD network and returns clamped candidate boxes.
// Output layout is [1, 1, N, 7]: (imageID, label, confidence, x1, y1, x2, y2)
// with normalized coordinates.
func (d *DNNFaceDetector) rawDetect(img gocv.Mat) []rawBox {
	imgHeight := float32(img.Rows())
	imgWidth := float32(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detections := d.Net.Forward("")
	defer detections.Close()

	sizes := detections.Size()
	if len(sizes) < 4 {
		log.Printf("detector: Warning - unexpected output matrix dimensions: %v", sizes)
		return nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	data := detections.Reshape(1, numDetections)
	defer data.Close()

	var boxes []rawBox
	for i := 0; i < numDetections; i++ {
		confidence := data.GetFloatAt(i, 2)
		if confidence < detectorConfThreshold {
			continue
		}
		x1 := int(data.GetFloatAt(i, 3) * imgWidth)
		y1 := int(data.GetFloatAt(i, 4) * imgHeight)
		x2 := int(data.GetFloatAt(i, 5) * imgWidth)
		y2 := int(data.GetFloatAt(i, 6) * imgHeight)

		x1 = maxInt(0, x1)
		y1 = maxInt(0, y1)
		x2 = minInt(int(imgWidth), x2)
		y2 = minInt(int(imgHeight), y2)
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		boxes = append(boxes, rawBox{rect: image.Rect(x1, y1, x2, y2), confidence: confidence})
	}
	return boxes
}

// laplacianVariance computes the sharpness metric for a face region: variance
// of the Laplacian over the grayscale crop. Low variance means few edges,
// which reads as blur.
func laplacianVariance(region gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	stdDev := gocv.NewMat()
	defer mean.Close()
	defer stdDev.Close()
	gocv.MeanStdDev(lap, &mean, &stdDev)

	sd := stdDev.GetDoubleAt(0, 0)
	return sd * sd
}

// qualityScore blends the size and sharpness components, both clamped [0,1]:
// 0.4 * size + 0.6 * blur.
func qualityScore(edgePx int, variance float64) float64 {
	sizeScore := float64(edgePx) / sizeScoreFullEdge
	if sizeScore > 1 {
		sizeScore = 1
	}
	blurScore := variance / blurScoreFullVariance
	if blurScore > 1 {
		blurScore = 1
	}
	return 0.4*sizeScore + 0.6*blurScore
}

// minInt returns the minimum of two int values
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// maxInt returns the maximum of two int values
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
