package media

import "errors"

type AssetType string

const (
	AssetTypeFaceCrop     AssetType = "face_crop"
	AssetTypeSessionImage AssetType = "session_image"
	AssetTypeUnknown      AssetType = "unknown"
)

// Detection-level failures. Both fail the whole session (recoverable by
// reprocess); per-face quality rejects do not.
var (
	ErrNoFaceDetected = errors.New("no face detected in image")
	ErrTooManyFaces   = errors.New("too many faces detected in image")
)

// RejectReason explains why a detected face was dropped before matching.
type RejectReason string

const (
	RejectUndersized RejectReason = "UNDERSIZED"
	RejectBlurry     RejectReason = "BLURRY"
)

// FaceCrop is one face accepted by the detector, carrying its encoded crop so
// downstream stages need no access to the source frame.
type FaceCrop struct {
	Index        int
	X1, Y1       int
	X2, Y2       int
	Confidence   float32
	QualityScore float64
	JPEG         []byte
}

// RejectedFace records a quality-gate drop for logging and counts.
type RejectedFace struct {
	Index  int
	Reason RejectReason
}

// DetectionOutput is the full result of running the detector on one image.
type DetectionOutput struct {
	Faces    []FaceCrop
	Rejected []RejectedFace
}
