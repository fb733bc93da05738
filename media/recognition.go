package media

import (
	"fmt"
	"image"
	"log"
	"math"
	"os"

	"gocv.io/x/gocv"
)

// FaceRecognitionModel extracts fixed-length face embeddings for matching.
type FaceRecognitionModel struct {
	Net       gocv.Net
	Enabled   bool
	ModelName string

	InputSizeW int
	InputSizeH int
	OutputDim  int
}

// NewFaceRecognitionModel loads a face embedding model (ArcFace, FaceNet, etc.)
func NewFaceRecognitionModel(modelPath string, modelName string, outputDim int) *FaceRecognitionModel {
	if modelPath == "" {
		log.Println("recognition: model path is empty, disabling face recognition")
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName, OutputDim: outputDim}
	}

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		log.Printf("recognition: ERROR - model file does not exist: %s", modelPath)
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName, OutputDim: outputDim}
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		log.Printf("recognition: ERROR - ReadNet returned an empty network for %s", modelName)
		return &FaceRecognitionModel{Enabled: false, ModelName: modelName, OutputDim: outputDim}
	}
	log.Printf("recognition: successfully loaded %s model", modelName)

	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr != nil || cudaTargetErr != nil {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
		log.Printf("recognition: Set backend/target to CPU (Default) for %s", modelName)
	} else {
		log.Printf("recognition: Set backend/target to CUDA for %s", modelName)
	}

	var inputW, inputH int
	switch modelName {
	case "facenet":
		inputW, inputH = 160, 160
	default: // arcface and compatible
		inputW, inputH = 112, 112
	}

	return &FaceRecognitionModel{
		Net:        net,
		Enabled:    true,
		ModelName:  modelName,
		InputSizeW: inputW,
		InputSizeH: inputH,
		OutputDim:  outputDim,
	}
}

func (f *FaceRecognitionModel) Close() {
	if f != nil && f.Enabled {
		f.Net.Close()
		log.Printf("recognition: closed %s network", f.ModelName)
		f.Enabled = false
	}
}

// Ready reports whether the network loaded.
func (f *FaceRecognitionModel) Ready() bool {
	return f != nil && f.Enabled
}

// Version returns the model-version tag stored alongside every embedding, so
// vectors from a future model upgrade can coexist with legacy ones.
func (f *FaceRecognitionModel) Version() string {
	return f.ModelName
}

// Extract converts an encoded face crop into a fixed-length, L2-normalized
// embedding vector.
func (f *FaceRecognitionModel) Extract(cropJPEG []byte) ([]float32, error) {
	if f == nil || !f.Enabled {
		return nil, fmt.Errorf("recognition model is not available")
	}

	crop, err := gocv.IMDecode(cropJPEG, gocv.IMReadColor)
	if err != nil || crop.Empty() {
		return nil, fmt.Errorf("failed to decode face crop: %w", err)
	}
	defer crop.Close()

	// ArcFace-style nets expect RGB input
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(crop, &rgb, gocv.ColorBGRToRGB)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(f.InputSizeW, f.InputSizeH), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(f.InputSizeW, f.InputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	f.Net.SetInput(blob, "")
	output := f.Net.Forward("")
	defer output.Close()

	embedding := flattenOutput(output)
	if len(embedding) != f.OutputDim {
		return nil, fmt.Errorf("model %s produced %d-dim output, expected %d", f.ModelName, len(embedding), f.OutputDim)
	}

	return normalizeEmbedding(embedding), nil
}

// flattenOutput extracts the embedding vector from the model output matrix.
func flattenOutput(output gocv.Mat) []float32 {
	if len(output.Size()) == 0 {
		return nil
	}

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make([]float32, flattened.Cols())
	for i := 0; i < flattened.Cols(); i++ {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return embedding
}

// normalizeEmbedding scales the vector to unit length (L2 normalization).
func normalizeEmbedding(embedding []float32) []float32 {
	var norm float32
	for _, val := range embedding {
		norm += val * val
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm == 0 {
		return embedding
	}

	normalized := make([]float32, len(embedding))
	for i, val := range embedding {
		normalized[i] = val / norm
	}
	return normalized
}
